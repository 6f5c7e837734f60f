// Package adonix resolves media through the authenticated adonix download API.
package adonix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/resolver"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api-adonix.ultraplus.click"

// ErrMissingAPIKey is returned when the provider is built without a key.
var ErrMissingAPIKey = errors.New("adonix api key is required")

// Provider calls {base}/download/ytaudio or ytvideo.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates the adapter. An empty name defaults to "adonix".
func New(name, baseURL, apiKey string, client *http.Client) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(name) == "" {
		name = "adonix"
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}, nil
}

func (p *Provider) Name() string { return p.name }

type response struct {
	Status   *bool  `json:"status"`
	Error    string `json:"error"`
	Message  string `json:"message"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Download string `json:"download"`
	Link     string `json:"link"`
	Format   string `json:"format"`
	Data     *struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"data"`
}

func (p *Provider) Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error) {
	endpoint := p.baseURL + "/download/ytaudio"
	if req.Kind == media.MediaTypeVideo {
		endpoint = p.baseURL + "/download/ytvideo"
	}
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return resolver.Result{}, fmt.Errorf("invalid adonix base url: %w", err)
	}
	params := reqURL.Query()
	params.Set("apikey", p.apiKey)
	params.Set("url", req.Locator)
	if req.Kind == media.MediaTypeVideo && req.Quality != "" {
		params.Set("quality", req.Quality)
	}
	reqURL.RawQuery = params.Encode()

	body, err := resolver.Get(ctx, p.client, reqURL.String(), "application/json, */*")
	if err != nil {
		return resolver.Result{}, err
	}
	var raw response
	if err := json.Unmarshal(body, &raw); err != nil {
		return resolver.Result{}, fmt.Errorf("invalid adonix response: %w", err)
	}
	if raw.Error != "" {
		return resolver.Result{}, fmt.Errorf("adonix: %s", raw.Error)
	}
	if raw.Status != nil && !*raw.Status {
		msg := raw.Message
		if msg == "" {
			msg = "status false"
		}
		return resolver.Result{}, fmt.Errorf("adonix: %s", msg)
	}

	res := resolver.Result{Title: raw.Title}
	for _, candidate := range []string{raw.URL, raw.Download, raw.Link} {
		if strings.TrimSpace(candidate) != "" {
			res.URL = candidate
			break
		}
	}
	if res.URL == "" && raw.Data != nil {
		res.URL = raw.Data.URL
		if res.Title == "" {
			res.Title = raw.Data.Title
		}
	}
	if res.URL == "" {
		return resolver.Result{}, resolver.ErrInvalidResult
	}
	return res, nil
}
