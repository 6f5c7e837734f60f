package jsonpath

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/resolver"
)

func TestResolveDefaultShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantURL   string
		wantTitle string
	}{
		{name: "top level", body: `{"url":"https://cdn.example/a.mp3","title":"A"}`, wantURL: "https://cdn.example/a.mp3", wantTitle: "A"},
		{name: "data", body: `{"data":{"url":"https://cdn.example/b.mp3","title":"B"}}`, wantURL: "https://cdn.example/b.mp3", wantTitle: "B"},
		{name: "result", body: `{"result":{"url":"https://cdn.example/c.mp3"}}`, wantURL: "https://cdn.example/c.mp3"},
		{name: "download", body: `{"download":"https://cdn.example/d.mp3","title":"D"}`, wantURL: "https://cdn.example/d.mp3", wantTitle: "D"},
		{name: "dl", body: `{"dl":"https://cdn.example/e.mp3"}`, wantURL: "https://cdn.example/e.mp3"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := New(Config{Name: "mirror", AudioEndpoint: srv.URL + "/audio?u={url}"}, srv.Client())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res, err := p.Resolve(context.Background(), resolver.Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeAudio})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if res.URL != tt.wantURL || res.Title != tt.wantTitle {
				t.Fatalf("got %+v", res)
			}
		})
	}
}

func TestResolveCustomExpressionAndQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("u") != "https://youtu.be/x" || r.URL.Query().Get("q") != "480" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"formats":[{"link":"https://cdn.example/v.mp4"}],"meta":{"name":"V"}}`))
	}))
	defer srv.Close()

	p, err := New(Config{
		Name:          "mirror",
		VideoEndpoint: srv.URL + "/video?u={url}&q={quality}",
		URLExpr:       "formats[0].link",
		TitleExpr:     "meta.name",
	}, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Resolve(context.Background(), resolver.Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeVideo, Quality: "480"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.URL != "https://cdn.example/v.mp4" || res.Title != "V" {
		t.Fatalf("got %+v", res)
	}

	if _, err := p.Resolve(context.Background(), resolver.Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeAudio}); err == nil {
		t.Fatal("audio without endpoint should fail")
	}
}

func TestResolveNoURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	}))
	defer srv.Close()

	p, _ := New(Config{Name: "mirror", AudioEndpoint: srv.URL}, srv.Client())
	_, err := p.Resolve(context.Background(), resolver.Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeAudio})
	if !errors.Is(err, resolver.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult, got %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{AudioEndpoint: "https://x"}, nil); err == nil {
		t.Fatal("missing name should fail")
	}
	if _, err := New(Config{Name: "m"}, nil); err == nil {
		t.Fatal("missing endpoints should fail")
	}
	if _, err := New(Config{Name: "m", AudioEndpoint: "https://x", URLExpr: "foo[["}, nil); err == nil {
		t.Fatal("invalid expression should fail")
	}
}
