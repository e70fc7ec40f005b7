package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/com-four/warmachine-ng/internal/domain"
)

// giphyPublicKey is Giphy's public beta key; override with the apiKey
// option.
const giphyPublicKey = "dc6zaTOxFJmzC"

// Giphy answers "!giphy <terms>" with the first search result.
type Giphy struct {
	apiBase string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewGiphy(logger *slog.Logger) *Giphy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Giphy{
		apiBase: "https://api.giphy.com",
		apiKey:  giphyPublicKey,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

func (g *Giphy) Name() string { return "giphy" }

// Configure accepts apiKey and apiBase options.
func (g *Giphy) Configure(options map[string]string) {
	if k, ok := options["apiKey"]; ok && k != "" {
		g.apiKey = k
	}
	if b, ok := options["apiBase"]; ok && b != "" {
		g.apiBase = b
	}
}

type giphyResponse struct {
	Data []struct {
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
}

func (g *Giphy) OnMessage(ctx context.Context, conn domain.Connection, msg domain.Message) error {
	if !strings.HasPrefix(msg.Text, "!giphy ") {
		return nil
	}
	terms := strings.TrimSpace(strings.TrimPrefix(msg.Text, "!giphy "))
	if terms == "" {
		return nil
	}
	g.logger.Debug("searching giphy", "terms", terms)

	params := url.Values{
		"q":       {terms},
		"api_key": {g.apiKey},
		"limit":   {"1"},
	}
	endpoint := g.apiBase + "/v1/gifs/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("giphy search: %w", err)
	}
	defer resp.Body.Close()

	var result giphyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("giphy search: decode: %w", err)
	}

	if len(result.Data) == 0 {
		return conn.Say(ctx, "No match for: "+terms, msg.ReplyTarget())
	}
	return conn.Say(ctx, result.Data[0].Images.Original.URL, msg.ReplyTarget())
}
