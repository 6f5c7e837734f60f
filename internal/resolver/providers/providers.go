// Package providers builds resolver adapters from configuration.
package providers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/memohai/playbot/internal/config"
	"github.com/memohai/playbot/internal/resolver"
	"github.com/memohai/playbot/internal/resolver/providers/adonix"
	"github.com/memohai/playbot/internal/resolver/providers/jsonpath"
	"github.com/memohai/playbot/internal/resolver/providers/textscan"
)

// ErrUnknownKind is returned for a provider kind with no adapter.
var ErrUnknownKind = errors.New("unknown provider kind")

// FromConfig builds providers in declared order.
func FromConfig(entries []config.ProviderConfig, client *http.Client) ([]resolver.Provider, error) {
	if len(entries) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	out := make([]resolver.Provider, 0, len(entries))
	for _, entry := range entries {
		p, err := build(entry, client)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", entry.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func build(entry config.ProviderConfig, client *http.Client) (resolver.Provider, error) {
	switch entry.Kind {
	case config.ProviderKindAdonix:
		return adonix.New(entry.Name, entry.BaseURL, entry.APIKey, client)
	case config.ProviderKindJSONPath:
		return jsonpath.New(jsonpath.Config{
			Name:          entry.Name,
			AudioEndpoint: entry.AudioEndpoint,
			VideoEndpoint: entry.VideoEndpoint,
			APIKey:        entry.APIKey,
			URLExpr:       entry.URLExpr,
			TitleExpr:     entry.TitleExpr,
		}, client)
	case config.ProviderKindTextScan:
		return textscan.New(entry.Name, entry.AudioEndpoint, entry.VideoEndpoint, entry.APIKey, client)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, entry.Kind)
	}
}
