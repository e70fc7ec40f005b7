package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configurable is an opt-in interface for plugins that accept options from
// the plugin options directory. The registry applies options via type
// assertion.
type Configurable interface {
	Configure(options map[string]string)
}

// LoadOptions reads per-plugin option maps from YAML files in dir. The file
// base name is the plugin name; unreadable or malformed files are logged
// and skipped so one bad file cannot block startup.
func LoadOptions(dir string, logger *slog.Logger) (map[string]map[string]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("plugin options directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin options dir: %w", err)
	}

	options := make(map[string]map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read plugin options file", "path", path, "err", err)
			continue
		}

		var opts map[string]string
		if err := yaml.Unmarshal(data, &opts); err != nil {
			logger.Warn("cannot parse plugin options file", "path", path, "err", err)
			continue
		}

		pluginName := strings.TrimSuffix(name, filepath.Ext(name))
		options[pluginName] = opts
		logger.Info("loaded plugin options", "plugin", pluginName, "path", path)
	}
	return options, nil
}

// ApplyOptions hands each Configurable plugin its option map.
func (r *Registry) ApplyOptions(options map[string]map[string]string) {
	for _, p := range r.Plugins() {
		c, ok := p.(Configurable)
		if !ok {
			continue
		}
		if opts, found := options[p.Name()]; found {
			c.Configure(opts)
		}
	}
}
