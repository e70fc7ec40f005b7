package plugin

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"giphy.yaml":  "apiKey: secret\n",
		"other.yml":   "setting: on\n",
		"broken.yaml": ":\t: not yaml",
		"notes.txt":   "ignored entirely",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	opts, err := LoadOptions(dir, testLogger())
	if err != nil {
		t.Fatalf("LoadOptions: %v", err)
	}
	if got := opts["giphy"]["apiKey"]; got != "secret" {
		t.Errorf("giphy apiKey = %q", got)
	}
	if got := opts["other"]["setting"]; got != "on" {
		t.Errorf("other setting = %q", got)
	}
	if _, ok := opts["broken"]; ok {
		t.Error("malformed file was not skipped")
	}
	if _, ok := opts["notes"]; ok {
		t.Error("non-yaml file was loaded")
	}
}

func TestLoadOptions_MissingDir(t *testing.T) {
	opts, err := LoadOptions(filepath.Join(t.TempDir(), "absent"), testLogger())
	if err != nil {
		t.Fatalf("missing dir should be a no-op, got %v", err)
	}
	if opts != nil {
		t.Errorf("opts = %v, want nil", opts)
	}
}
