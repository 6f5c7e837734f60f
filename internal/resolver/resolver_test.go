package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memohai/playbot/internal/media"
)

type fakeProvider struct {
	name  string
	res   Result
	err   error
	delay time.Duration
	panic bool

	mu    sync.Mutex
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Resolve(ctx context.Context, req Request) (Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.panic {
		panic("provider exploded")
	}
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return p.res, p.err
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordedAttempt struct {
	provider string
	outcome  string
}

func TestCascadeStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", err: errors.New("boom")}
	b := &fakeProvider{name: "b", res: Result{URL: "https://cdn.example/x.m4a", Title: " Song "}}
	c := &fakeProvider{name: "c", res: Result{URL: "https://cdn.example/y.mp3"}}

	var mu sync.Mutex
	var attempts []recordedAttempt
	cascade := NewCascade(nil, time.Second, []Provider{a, b, c}, WithObserver(func(provider, outcome string, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, recordedAttempt{provider, outcome})
	}))

	res, err := cascade.Resolve(context.Background(), Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeAudio})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/x.m4a", res.URL)
	require.Equal(t, "b", res.Provider)
	require.Equal(t, "Song", res.Title)
	require.Equal(t, "audio/mp4", res.Mime)
	require.Equal(t, 1, a.Calls())
	require.Equal(t, 1, b.Calls())
	require.Equal(t, 0, c.Calls())
	require.Equal(t, []recordedAttempt{{"a", OutcomeError}, {"b", OutcomeOK}}, attempts)
}

func TestCascadeExhaustion(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", err: errors.New("quota exceeded")}
	b := &fakeProvider{name: "b", res: Result{URL: "ftp://nope"}}
	c := &fakeProvider{name: "c", res: Result{URL: ""}}
	d := &fakeProvider{name: "d", panic: true}

	_, err := NewCascade(nil, time.Second, []Provider{a, b, c, d}).
		Resolve(context.Background(), Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeVideo})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoProviderAvailable)
	require.ErrorIs(t, err, ErrInvalidResult)
	msg := err.Error()
	for _, want := range []string{"a: quota exceeded", "b: ", "c: ", "d: provider panic"} {
		require.True(t, strings.Contains(msg, want), "error %q should mention %q", msg, want)
	}
}

func TestCascadePerProviderTimeout(t *testing.T) {
	t.Parallel()

	slow := &fakeProvider{name: "slow", delay: time.Second, res: Result{URL: "https://cdn.example/slow.mp3"}}
	fast := &fakeProvider{name: "fast", res: Result{URL: "https://cdn.example/fast.mp3"}}

	var outcomes []string
	cascade := NewCascade(nil, 30*time.Millisecond, []Provider{slow, fast}, WithObserver(func(_, outcome string, _ time.Duration) {
		outcomes = append(outcomes, outcome)
	}))
	res, err := cascade.Resolve(context.Background(), Request{Locator: "https://youtu.be/x", Kind: media.MediaTypeAudio})
	require.NoError(t, err)
	require.Equal(t, "fast", res.Provider)
	require.Equal(t, []string{OutcomeTimeout, OutcomeOK}, outcomes)
}

func TestCascadeCancelledContext(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", res: Result{URL: "https://cdn.example/a.mp3"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCascade(nil, time.Second, []Provider{a}).Resolve(ctx, Request{Locator: "https://youtu.be/x"})
	require.ErrorIs(t, err, ErrNoProviderAvailable)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, a.Calls())
}

func TestCascadeEmptyLocator(t *testing.T) {
	t.Parallel()

	_, err := NewCascade(nil, 0, nil).Resolve(context.Background(), Request{})
	require.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestExpandTemplate(t *testing.T) {
	t.Parallel()

	got := ExpandTemplate("https://m.example/dl?u={url}&q={quality}&k={apikey}",
		Request{Locator: "https://youtu.be/a b", Quality: "720"}, "k&1")
	require.Equal(t, "https://m.example/dl?u=https%3A%2F%2Fyoutu.be%2Fa+b&q=720&k=k%261", got)
}
