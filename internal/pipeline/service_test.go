package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/jobs"
	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/resolver"
	"github.com/memohai/playbot/internal/resolver/providers/adonix"
	"github.com/memohai/playbot/internal/search"
)

const (
	testChannel = channel.ChannelType("telegram")
	testChat    = "chat-1"
	commandID   = "100"
)

type sentMessage struct {
	channel.OutboundMessage
	contents map[string][]byte
}

type fakeTransport struct {
	mu              sync.Mutex
	next            int
	sent            []sentMessage
	reactions       []string
	failAttachments bool
}

func (f *fakeTransport) Send(_ context.Context, _ channel.ChannelType, msg channel.OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAttachments && len(msg.Message.Attachments) > 0 {
		return "", errors.New("upload refused")
	}
	rec := sentMessage{OutboundMessage: msg, contents: map[string][]byte{}}
	for _, att := range msg.Message.Attachments {
		if att.Path != "" {
			data, err := os.ReadFile(att.Path)
			if err == nil {
				rec.contents[att.Path] = data
			}
		}
	}
	f.next++
	f.sent = append(f.sent, rec)
	return fmt.Sprintf("m%d", f.next), nil
}

func (f *fakeTransport) React(_ context.Context, _ channel.ChannelType, _, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+":"+emoji)
	return nil
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.Message.Text != "" {
			out = append(out, m.Message.Text)
		}
	}
	return out
}

func (f *fakeTransport) deliveries() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if len(m.Message.Attachments) > 0 {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) hasReaction(messageID, emoji string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reactions {
		if r == messageID+":"+emoji {
			return true
		}
	}
	return false
}

func (f *fakeTransport) textContaining(sub string) bool {
	for _, text := range f.texts() {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

type fakeSearcher struct {
	item search.Item
	err  error
}

func (f fakeSearcher) Search(context.Context, string) (search.Item, error) {
	return f.item, f.err
}

type resolverFunc func(ctx context.Context, req resolver.Request) (resolver.Result, error)

func (f resolverFunc) Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error) {
	return f(ctx, req)
}

type failingTranscoder struct{ calls atomic.Int32 }

func (f *failingTranscoder) ToAudio(context.Context, string, string) error {
	f.calls.Add(1)
	return errors.New("ffmpeg exploded")
}

type harness struct {
	svc       *Service
	transport *fakeTransport
	jobs      *jobs.Registry
	store     *media.TempStore
}

func newHarness(t *testing.T, cfg Config, deps Deps) *harness {
	t.Helper()
	store, err := media.NewTempStore(nil, t.TempDir())
	require.NoError(t, err)
	transport := &fakeTransport{}
	if deps.Transport == nil {
		deps.Transport = transport
	} else if ft, ok := deps.Transport.(*fakeTransport); ok {
		transport = ft
	}
	if deps.Searcher == nil {
		deps.Searcher = fakeSearcher{item: search.Item{
			ID:       "dQw4w9WgXcQ",
			Title:    "Song",
			URL:      search.WatchURL("dQw4w9WgXcQ"),
			Author:   "Rick",
			Duration: 3 * time.Minute,
			Views:    10,
		}}
	}
	deps.Fetcher = media.NewFetcher(nil, nil, 5*time.Second)
	deps.Store = store
	deps.Jobs = jobs.NewRegistry(nil, time.Minute, nil)
	svc, err := NewService(nil, cfg, deps)
	require.NoError(t, err)
	return &harness{svc: svc, transport: transport, jobs: deps.Jobs, store: store}
}

func (h *harness) openPreview(t *testing.T) string {
	t.Helper()
	err := h.svc.HandleRequest(context.Background(), Request{
		Channel:   testChannel,
		Chat:      testChat,
		MessageID: commandID,
		Query:     "song",
	})
	require.NoError(t, err)
	texts := h.transport.texts()
	require.NotEmpty(t, texts)
	require.Contains(t, texts[0], "Song")
	return "m1"
}

func reactionTo(previewID, emoji string) channel.InboundMessage {
	return channel.InboundMessage{
		Channel:      testChannel,
		Conversation: channel.Conversation{ID: testChat},
		Reaction:     &channel.Reaction{MessageID: previewID, Emoji: emoji},
	}
}

func quotedReply(previewID, text string) channel.InboundMessage {
	return channel.InboundMessage{
		Channel:      testChannel,
		Conversation: channel.Conversation{ID: testChat},
		Message: channel.Message{
			ID:    "r-" + text,
			Text:  text,
			Reply: &channel.ReplyRef{MessageID: previewID},
		},
	}
}

func (h *harness) react(t *testing.T, previewID, emoji string) {
	t.Helper()
	require.NoError(t, h.svc.HandleInbound(context.Background(), channel.ChannelConfig{}, reactionTo(previewID, emoji)))
}

func (h *harness) replyTo(t *testing.T, previewID, text string) {
	t.Helper()
	require.NoError(t, h.svc.HandleInbound(context.Background(), channel.ChannelConfig{}, quotedReply(previewID, text)))
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))
}

func (h *harness) requireCleanTempDir(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.store.Dir())
	require.NoError(t, err)
	require.Empty(t, entries, "temp artifacts left behind")
}

func mediaServer(t *testing.T, mime string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mime)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEndAudioDelivery(t *testing.T) {
	t.Parallel()

	payload := []byte("ID3 fake mp3 payload")
	files := mediaServer(t, "audio/mpeg", payload)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download/ytaudio" || r.URL.Query().Get("apikey") != "k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":true,"data":{"title":"Song","url":%q}}`, files.URL+"/song.mp3")
	}))
	t.Cleanup(api.Close)

	provider, err := adonix.New("adonix", api.URL, "k", api.Client())
	require.NoError(t, err)
	h := newHarness(t, Config{}, Deps{
		Resolver: resolver.NewCascade(nil, 5*time.Second, []resolver.Provider{provider}),
	})

	previewID := h.openPreview(t)
	require.True(t, h.transport.hasReaction(commandID, ReactionSearching))
	require.True(t, h.transport.hasReaction(commandID, ReactionDone))
	_, ok := h.jobs.Get(jobs.Key(testChat, previewID))
	require.True(t, ok)

	h.react(t, previewID, "👍")
	h.wait(t)

	deliveries := h.transport.deliveries()
	require.Len(t, deliveries, 1)
	att := deliveries[0].Message.Attachments[0]
	require.Equal(t, channel.AttachmentAudio, att.Type)
	require.Equal(t, "Song.mp3", att.Name)
	require.Equal(t, "audio/mpeg", att.Mime)
	require.Equal(t, int64(len(payload)), att.Size)
	require.Equal(t, payload, deliveries[0].contents[att.Path])
	require.Equal(t, commandID, deliveries[0].Message.Reply.MessageID)

	_, ok = h.jobs.Get(jobs.Key(testChat, previewID))
	require.False(t, ok, "job should be evicted after delivery")
	h.requireCleanTempDir(t)
}

func TestAllProvidersFail(t *testing.T) {
	t.Parallel()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(api.Close)

	first, err := adonix.New("first", api.URL, "k", api.Client())
	require.NoError(t, err)
	second, err := adonix.New("second", api.URL, "k", api.Client())
	require.NoError(t, err)
	h := newHarness(t, Config{}, Deps{
		Resolver: resolver.NewCascade(nil, 5*time.Second, []resolver.Provider{first, second}),
	})

	previewID := h.openPreview(t)
	h.react(t, previewID, "❤️")
	h.wait(t)

	require.Empty(t, h.transport.deliveries())
	var failures []string
	for _, text := range h.transport.texts() {
		if strings.HasPrefix(text, "❌") {
			failures = append(failures, text)
		}
	}
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "any provider")
	require.True(t, h.transport.hasReaction(commandID, ReactionFailed))
	_, ok := h.jobs.Get(jobs.Key(testChat, previewID))
	require.False(t, ok)
	h.requireCleanTempDir(t)
}

func TestProviderTitleOverridesSearchTitle(t *testing.T) {
	t.Parallel()

	files := mediaServer(t, "audio/mpeg", []byte("payload"))
	tests := []struct {
		name          string
		providerTitle string
		wantName      string
		wantCaption   string
	}{
		{name: "provider title wins", providerTitle: "Provider Cut", wantName: "Provider Cut.mp3", wantCaption: "🎵 Provider Cut"},
		{name: "search title as fallback", providerTitle: "  ", wantName: "Song.mp3", wantCaption: "🎵 Song"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{}, Deps{
				Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
					return resolver.Result{URL: files.URL + "/a.mp3", Mime: "audio/mpeg", Title: tt.providerTitle}, nil
				}),
			})
			previewID := h.openPreview(t)
			h.react(t, previewID, "👍")
			h.wait(t)

			deliveries := h.transport.deliveries()
			require.Len(t, deliveries, 1)
			att := deliveries[0].Message.Attachments[0]
			require.Equal(t, tt.wantName, att.Name)
			require.Equal(t, tt.wantCaption, att.Caption)
		})
	}
}

func TestConcurrentDecisionsDownloadOnce(t *testing.T) {
	t.Parallel()

	files := mediaServer(t, "audio/mpeg", []byte("payload"))
	var resolves atomic.Int32
	h := newHarness(t, Config{}, Deps{
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			resolves.Add(1)
			return resolver.Result{URL: files.URL + "/a.mp3", Mime: "audio/mpeg"}, nil
		}),
	})
	previewID := h.openPreview(t)

	var wg sync.WaitGroup
	errs := make([]error, 32)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := quotedReply(previewID, "audio")
			if i%2 == 0 {
				msg = reactionTo(previewID, "👍")
			}
			errs[i] = h.svc.HandleInbound(context.Background(), channel.ChannelConfig{}, msg)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "decision %d", i)
	}
	h.wait(t)

	require.Equal(t, int32(1), resolves.Load())
	require.Len(t, h.transport.deliveries(), 1)
}

func TestUnrecognizedReplyKeepsJobOpen(t *testing.T) {
	t.Parallel()

	files := mediaServer(t, "video/mp4", []byte("mp4 bytes"))
	var gotQuality atomic.Value
	h := newHarness(t, Config{DefaultQuality: "360"}, Deps{
		Resolver: resolverFunc(func(_ context.Context, req resolver.Request) (resolver.Result, error) {
			gotQuality.Store(req.Quality)
			return resolver.Result{URL: files.URL + "/v.mp4", Mime: "video/mp4"}, nil
		}),
	})
	previewID := h.openPreview(t)

	h.replyTo(t, previewID, "what is this")
	require.True(t, h.transport.textContaining("⚠️ Options"))
	job, ok := h.jobs.Get(jobs.Key(testChat, previewID))
	require.True(t, ok)
	require.False(t, job.Decided())

	h.react(t, previewID, "📁")
	h.wait(t)

	deliveries := h.transport.deliveries()
	require.Len(t, deliveries, 1)
	att := deliveries[0].Message.Attachments[0]
	require.Equal(t, channel.AttachmentFile, att.Type)
	require.Equal(t, "video/mp4", att.Mime)
	require.Equal(t, "360", gotQuality.Load())
}

func TestTooLargeIsRejected(t *testing.T) {
	t.Parallel()

	files := mediaServer(t, "audio/mpeg", make([]byte, 1<<20))
	h := newHarness(t, Config{CeilingMB: 1}, Deps{
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			return resolver.Result{URL: files.URL + "/big.mp3", Mime: "audio/mpeg"}, nil
		}),
	})
	previewID := h.openPreview(t)
	h.react(t, previewID, "👍")
	h.wait(t)

	require.Empty(t, h.transport.deliveries())
	require.True(t, h.transport.textContaining("too large"))
	h.requireCleanTempDir(t)
}

func TestTranscodeFailureFallsBackToDocument(t *testing.T) {
	t.Parallel()

	files := mediaServer(t, "audio/webm", []byte("webm audio"))
	tc := &failingTranscoder{}
	h := newHarness(t, Config{Transcode: true}, Deps{
		Transcoder: tc,
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			return resolver.Result{URL: files.URL + "/a.webm", Mime: "audio/webm"}, nil
		}),
	})
	previewID := h.openPreview(t)
	h.react(t, previewID, "👍")
	h.wait(t)

	require.Equal(t, int32(1), tc.calls.Load())
	deliveries := h.transport.deliveries()
	require.Len(t, deliveries, 1)
	att := deliveries[0].Message.Attachments[0]
	require.Equal(t, channel.AttachmentFile, att.Type)
	require.Equal(t, "audio/webm", att.Mime)
	require.Equal(t, "Song.webm", att.Name)
	h.requireCleanTempDir(t)
}

func TestDeliveryFailureIsReported(t *testing.T) {
	t.Parallel()

	files := mediaServer(t, "audio/mpeg", []byte("payload"))
	transport := &fakeTransport{failAttachments: true}
	h := newHarness(t, Config{}, Deps{
		Transport: transport,
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			return resolver.Result{URL: files.URL + "/a.mp3", Mime: "audio/mpeg"}, nil
		}),
	})
	previewID := h.openPreview(t)
	h.react(t, previewID, "👍")
	h.wait(t)

	require.True(t, transport.textContaining("Couldn't send the file"))
	h.requireCleanTempDir(t)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, Deps{
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			panic("boom")
		}),
	})
	previewID := h.openPreview(t)
	h.react(t, previewID, "👍")
	h.wait(t)

	require.True(t, h.transport.textContaining("Something went wrong"))
	_, ok := h.jobs.Get(jobs.Key(testChat, previewID))
	require.False(t, ok)
}

func TestHandleRequestFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		searcher search.Searcher
		want     error
		text     string
	}{
		{
			name:     "no results",
			searcher: fakeSearcher{err: search.ErrNotFound},
			want:     ErrNoResults,
			text:     "No results",
		},
		{
			name:     "too long",
			searcher: fakeSearcher{item: search.Item{URL: "https://www.youtube.com/watch?v=x", Duration: 2 * time.Hour}},
			want:     ErrTooLong,
			text:     "max 90 minutes",
		},
		{
			name:     "search down",
			searcher: fakeSearcher{err: fmt.Errorf("%w: all instances failed", search.ErrUnavailable)},
			want:     search.ErrUnavailable,
			text:     "unavailable",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Config{}, Deps{
				Searcher: tt.searcher,
				Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
					t.Fatal("resolver must not be called")
					return resolver.Result{}, nil
				}),
			})
			err := h.svc.HandleRequest(context.Background(), Request{
				Channel: testChannel, Chat: testChat, MessageID: commandID, Query: "x",
			})
			require.ErrorIs(t, err, tt.want)
			require.True(t, h.transport.textContaining(tt.text))
			require.True(t, h.transport.hasReaction(commandID, ReactionFailed))
			require.Equal(t, 0, h.jobs.Len())
		})
	}
}

func TestPlayCommandThroughInbound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, Deps{
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			return resolver.Result{}, resolver.ErrNoProviderAvailable
		}),
	})
	inbound := func(text string) {
		err := h.svc.HandleInbound(context.Background(), channel.ChannelConfig{}, channel.InboundMessage{
			Channel:      testChannel,
			Conversation: channel.Conversation{ID: testChat},
			Message:      channel.Message{ID: commandID, Text: text},
		})
		require.NoError(t, err)
	}

	inbound(".play")
	require.True(t, h.transport.textContaining(".play <name or link>"))

	inbound(".help")
	require.True(t, h.transport.textContaining("Commands"))

	inbound("just chatting")
	require.Equal(t, 0, h.jobs.Len())

	inbound(".play song")
	require.Equal(t, 1, h.jobs.Len())
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: &media.TooLargeError{SizeMB: 120.5, LimitMB: 99}, want: "120.50 MB, limit 99 MB"},
		{err: &media.RemoteRejectedError{Status: 403}, want: "HTTP 403"},
		{err: media.ErrFetchTimeout, want: "timed out"},
		{err: media.ErrEmptyPayload, want: "empty file"},
		{err: fmt.Errorf("%w: x", ErrDelivery), want: "Couldn't send"},
		{err: errors.New("weird"), want: "Something went wrong"},
	}
	for _, tt := range tests {
		if got := userMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Fatalf("userMessage(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestDecisionAfterShutdownIsIgnored(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := newHarness(t, Config{}, Deps{
		Resolver: resolverFunc(func(context.Context, resolver.Request) (resolver.Result, error) {
			calls.Add(1)
			return resolver.Result{}, resolver.ErrNoProviderAvailable
		}),
	})
	previewID := h.openPreview(t)
	h.wait(t)
	h.react(t, previewID, "👍")

	require.Zero(t, calls.Load())
	job, ok := h.jobs.Get(jobs.Key(testChat, previewID))
	require.True(t, ok)
	require.False(t, job.Decided())
}
