// Package textscan resolves media through mirrors that answer with plain text
// or HTML instead of JSON. The first media link in the body wins.
package textscan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/resolver"
)

var (
	audioPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:mp3|m4a|opus|webm)[^\s"'<>]*`)
	videoPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:mp4|webm|mkv)[^\s"'<>]*`)
)

// Provider scans a text response for a media link.
type Provider struct {
	name          string
	audioEndpoint string
	videoEndpoint string
	apiKey        string
	client        *http.Client
}

// New creates the adapter; at least one endpoint template is required.
func New(name, audioEndpoint, videoEndpoint, apiKey string, client *http.Client) (*Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("textscan provider name is required")
	}
	if strings.TrimSpace(audioEndpoint) == "" && strings.TrimSpace(videoEndpoint) == "" {
		return nil, fmt.Errorf("textscan provider %s: at least one endpoint is required", name)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Provider{
		name:          name,
		audioEndpoint: audioEndpoint,
		videoEndpoint: videoEndpoint,
		apiKey:        apiKey,
		client:        client,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error) {
	tmpl, pattern := p.audioEndpoint, audioPattern
	if req.Kind == media.MediaTypeVideo {
		tmpl, pattern = p.videoEndpoint, videoPattern
	}
	if strings.TrimSpace(tmpl) == "" {
		return resolver.Result{}, fmt.Errorf("%s does not serve %s", p.name, req.Kind)
	}
	body, err := resolver.Get(ctx, p.client, resolver.ExpandTemplate(tmpl, req, p.apiKey), "*/*")
	if err != nil {
		return resolver.Result{}, err
	}
	text := strings.TrimSpace(string(body))
	// A bare link is accepted regardless of extension.
	if !strings.ContainsAny(text, " \t\r\n\"'<>") && media.IsFetchableURL(text) {
		return resolver.Result{URL: text}, nil
	}
	match := pattern.FindString(text)
	if match == "" {
		return resolver.Result{}, resolver.ErrInvalidResult
	}
	return resolver.Result{URL: match}, nil
}
