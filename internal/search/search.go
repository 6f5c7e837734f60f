// Package search finds a video for a free-text query through
// Invidious-compatible instances.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/memohai/playbot/internal/media"
)

var (
	// ErrNotFound is returned when an instance answered but had no playable video.
	ErrNotFound = errors.New("no results")
	// ErrUnavailable is returned when every instance failed.
	ErrUnavailable = errors.New("search unavailable")
)

// DefaultInstances are tried in order when none are configured.
var DefaultInstances = []string{
	"https://inv.nadeko.net",
	"https://yewtu.be",
	"https://invidious.nerdvpn.de",
}

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20
)

// Item is one search hit.
type Item struct {
	ID        string
	Title     string
	URL       string
	Thumbnail string
	Author    string
	Duration  time.Duration
	Views     int64
	Published string
}

// Searcher resolves a query to a single video.
type Searcher interface {
	Search(ctx context.Context, query string) (Item, error)
}

// Client queries instances in order until one answers.
type Client struct {
	instances []string
	client    *http.Client
	logger    *slog.Logger
}

// NewClient creates a Client. Trailing slashes on instances are ignored.
func NewClient(log *slog.Logger, instances []string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if len(instances) == 0 {
		instances = DefaultInstances
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cleaned := make([]string, 0, len(instances))
	for _, inst := range instances {
		if inst = strings.TrimRight(strings.TrimSpace(inst), "/"); inst != "" {
			cleaned = append(cleaned, inst)
		}
	}
	return &Client{
		instances: cleaned,
		client:    &http.Client{Timeout: timeout},
		logger:    log.With(slog.String("service", "search")),
	}
}

type thumbnail struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

type video struct {
	Type            string      `json:"type"`
	Title           string      `json:"title"`
	VideoID         string      `json:"videoId"`
	Author          string      `json:"author"`
	LengthSeconds   int64       `json:"lengthSeconds"`
	ViewCount       int64       `json:"viewCount"`
	PublishedText   string      `json:"publishedText"`
	LiveNow         bool        `json:"liveNow"`
	VideoThumbnails []thumbnail `json:"videoThumbnails"`
}

// Search returns the first playable video for query. A query that is already
// a YouTube link skips text search and only fetches metadata.
func (c *Client) Search(ctx context.Context, query string) (Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Item{}, ErrNotFound
	}
	if id := VideoID(query); id != "" {
		return c.lookup(ctx, id)
	}

	var failures *multierror.Error
	for _, inst := range c.instances {
		endpoint := inst + "/api/v1/search?" + url.Values{"q": {query}, "type": {"video"}}.Encode()
		var results []video
		if err := c.getJSON(ctx, endpoint, &results); err != nil {
			c.logger.Warn("search instance failed", slog.String("instance", inst), slog.Any("error", err))
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", inst, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, v := range results {
			if v.Type != "" && v.Type != "video" {
				continue
			}
			if v.VideoID == "" || v.LiveNow || v.LengthSeconds <= 0 {
				continue
			}
			return toItem(inst, v), nil
		}
		return Item{}, ErrNotFound
	}
	return Item{}, fmt.Errorf("%w: %w", ErrUnavailable, failures.ErrorOrNil())
}

func (c *Client) lookup(ctx context.Context, id string) (Item, error) {
	var failures *multierror.Error
	for _, inst := range c.instances {
		var v video
		if err := c.getJSON(ctx, inst+"/api/v1/videos/"+url.PathEscape(id), &v); err != nil {
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", inst, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if v.VideoID == "" {
			v.VideoID = id
		}
		return toItem(inst, v), nil
	}
	// Metadata is optional for direct links; the locator alone is enough to resolve.
	c.logger.Warn("video lookup failed, using bare link", slog.String("id", id), slog.Any("error", failures.ErrorOrNil()))
	return Item{
		ID:        id,
		Title:     "YouTube " + id,
		URL:       WatchURL(id),
		Thumbnail: fallbackThumbnail(id),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := media.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

func toItem(instance string, v video) Item {
	return Item{
		ID:        v.VideoID,
		Title:     strings.TrimSpace(v.Title),
		URL:       WatchURL(v.VideoID),
		Thumbnail: pickThumbnail(instance, v),
		Author:    strings.TrimSpace(v.Author),
		Duration:  time.Duration(v.LengthSeconds) * time.Second,
		Views:     v.ViewCount,
		Published: v.PublishedText,
	}
}

func pickThumbnail(instance string, v video) string {
	chosen := ""
	for _, pref := range []string{"high", "medium", "sddefault", "default"} {
		for _, th := range v.VideoThumbnails {
			if th.Quality == pref && th.URL != "" {
				chosen = th.URL
				break
			}
		}
		if chosen != "" {
			break
		}
	}
	if chosen == "" && len(v.VideoThumbnails) > 0 {
		chosen = v.VideoThumbnails[0].URL
	}
	if chosen == "" {
		return fallbackThumbnail(v.VideoID)
	}
	if strings.HasPrefix(chosen, "//") {
		return "https:" + chosen
	}
	if strings.HasPrefix(chosen, "/") {
		return instance + chosen
	}
	return chosen
}

func fallbackThumbnail(id string) string {
	return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"
}

// WatchURL returns the canonical watch link for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the id from a YouTube link, or returns "".
func VideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	}
	if !videoIDPattern.MatchString(id) {
		return ""
	}
	return id
}
