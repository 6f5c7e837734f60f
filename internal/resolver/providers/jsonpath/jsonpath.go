// Package jsonpath resolves media through public mirrors whose JSON responses
// are described by JMESPath expressions.
package jsonpath

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/resolver"
)

// Default expressions cover the response shapes common among mirrors.
const (
	DefaultURLExpr   = "url || data.url || result.url || download || link || dl || direct"
	DefaultTitleExpr = "title || data.title || result.title"
)

// Config describes one mirror.
type Config struct {
	Name          string
	AudioEndpoint string
	VideoEndpoint string
	APIKey        string
	URLExpr       string
	TitleExpr     string
}

// Provider queries a mirror and extracts the URL with JMESPath.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New validates the expressions and endpoints and returns the adapter.
func New(cfg Config, client *http.Client) (*Provider, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return nil, errors.New("jsonpath provider name is required")
	}
	if strings.TrimSpace(cfg.AudioEndpoint) == "" && strings.TrimSpace(cfg.VideoEndpoint) == "" {
		return nil, fmt.Errorf("jsonpath provider %s: at least one endpoint is required", cfg.Name)
	}
	if strings.TrimSpace(cfg.URLExpr) == "" {
		cfg.URLExpr = DefaultURLExpr
	}
	if strings.TrimSpace(cfg.TitleExpr) == "" {
		cfg.TitleExpr = DefaultTitleExpr
	}
	for _, expr := range []string{cfg.URLExpr, cfg.TitleExpr} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("jsonpath provider %s: invalid expression %q: %w", cfg.Name, expr, err)
		}
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error) {
	tmpl := p.cfg.AudioEndpoint
	if req.Kind == media.MediaTypeVideo {
		tmpl = p.cfg.VideoEndpoint
	}
	if strings.TrimSpace(tmpl) == "" {
		return resolver.Result{}, fmt.Errorf("%s does not serve %s", p.cfg.Name, req.Kind)
	}
	body, err := resolver.Get(ctx, p.client, resolver.ExpandTemplate(tmpl, req, p.cfg.APIKey), "application/json")
	if err != nil {
		return resolver.Result{}, err
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return resolver.Result{}, fmt.Errorf("invalid %s response: %w", p.cfg.Name, err)
	}
	rawURL, err := searchString(p.cfg.URLExpr, data)
	if err != nil {
		return resolver.Result{}, err
	}
	if rawURL == "" {
		return resolver.Result{}, resolver.ErrInvalidResult
	}
	title, _ := searchString(p.cfg.TitleExpr, data)
	return resolver.Result{URL: rawURL, Title: title}, nil
}

func searchString(expr string, data any) (string, error) {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}
	s, _ := v.(string)
	return strings.TrimSpace(s), nil
}
