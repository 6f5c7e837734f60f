// Package pipeline drives a play request from search to delivery: it sends
// the preview, correlates the user's reaction or quoted reply with the open
// job and runs the chosen download.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/command"
	"github.com/memohai/playbot/internal/decision"
	"github.com/memohai/playbot/internal/jobs"
	"github.com/memohai/playbot/internal/media"
	"github.com/memohai/playbot/internal/preview"
	"github.com/memohai/playbot/internal/resolver"
	"github.com/memohai/playbot/internal/search"
)

// Status reactions placed on the command message.
const (
	ReactionSearching = "🕒"
	ReactionDone      = "✅"
	ReactionFailed    = "❌"
)

const (
	// DefaultJobTimeout bounds one decision from resolve to delivery.
	DefaultJobTimeout = 10 * time.Minute
	// DefaultMaxDuration is the longest video accepted for a preview.
	DefaultMaxDuration = 90 * time.Minute

	notifyTimeout = 15 * time.Second
)

// Transport sends messages and reactions to chat platforms.
type Transport interface {
	Send(ctx context.Context, channelType channel.ChannelType, msg channel.OutboundMessage) (string, error)
	React(ctx context.Context, channelType channel.ChannelType, target, messageID, emoji string) error
}

// Resolver turns a locator into a downloadable URL.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Result, error)
}

// Transcoder converts a downloaded file to mp3.
type Transcoder interface {
	ToAudio(ctx context.Context, inPath, outPath string) error
}

// Recorder receives pipeline outcomes. Outcome is "ok" or a Reason* value.
type Recorder interface {
	RequestFinished(channelType channel.ChannelType, outcome string)
	DeliveryFinished(kind media.MediaType, outcome string, elapsed time.Duration)
}

// Request is a play command received from a chat.
type Request struct {
	Channel   channel.ChannelType
	Chat      string
	MessageID string
	Query     string
}

// Config holds the tunables of the pipeline.
type Config struct {
	MaxDuration    time.Duration
	JobTimeout     time.Duration
	CeilingMB      int64
	Transcode      bool
	DefaultQuality string
}

// Deps are the collaborators of the Service. Transcoder and Recorder are optional.
type Deps struct {
	Transport  Transport
	Searcher   search.Searcher
	Resolver   Resolver
	Fetcher    *media.Fetcher
	Store      *media.TempStore
	Transcoder Transcoder
	Jobs       *jobs.Registry
	Decisions  *decision.Resolver
	Previews   *preview.Renderer
	Router     *command.Router
	Recorder   Recorder
}

// Service is the orchestrator.
type Service struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewService validates deps and registers the play and help commands on the router.
func NewService(log *slog.Logger, cfg Config, deps Deps) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Transport == nil || deps.Searcher == nil || deps.Resolver == nil || deps.Fetcher == nil ||
		deps.Store == nil || deps.Jobs == nil {
		return nil, errors.New("pipeline: transport, searcher, resolver, fetcher, store and jobs are required")
	}
	if deps.Decisions == nil {
		deps.Decisions = decision.NewResolver(nil)
	}
	if deps.Previews == nil {
		deps.Previews = preview.NewRenderer(log, deps.Fetcher, 0)
	}
	if deps.Router == nil {
		deps.Router = command.NewRouter(nil)
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.CeilingMB <= 0 {
		cfg.CeilingMB = media.DefaultCeilingMB
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:     cfg,
		deps:    deps,
		logger:  log.With(slog.String("service", "pipeline")),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	if err := s.registerCommands(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Service) registerCommands() error {
	err := s.deps.Router.Register(command.Command{
		Name:        "play",
		Usage:       "play <name or link>",
		Description: "search and download audio or video",
		Handler: func(ctx context.Context, inv command.Invocation, msg channel.InboundMessage) error {
			if inv.Args == "" {
				s.reply(ctx, msg.Channel, msg.ReplyTarget(), msg.Message.ID, command.PlayUsage(inv.Prefix))
				return nil
			}
			return s.HandleRequest(ctx, Request{
				Channel:   msg.Channel,
				Chat:      msg.ReplyTarget(),
				MessageID: msg.Message.ID,
				Query:     inv.Args,
			})
		},
	})
	if err != nil {
		return err
	}
	return s.deps.Router.Register(command.Command{
		Name:        "help",
		Aliases:     []string{"menu"},
		Description: "list commands",
		Handler: func(ctx context.Context, _ command.Invocation, msg channel.InboundMessage) error {
			s.reply(ctx, msg.Channel, msg.ReplyTarget(), msg.Message.ID, s.deps.Router.Help())
			return nil
		},
	})
}

// HandleInbound is the manager's inbound handler. Reactions and quoted replies
// on a live preview become decisions; everything else goes to the command router.
func (s *Service) HandleInbound(ctx context.Context, _ channel.ChannelConfig, msg channel.InboundMessage) error {
	chat := msg.ReplyTarget()
	if msg.IsReaction() {
		key := jobs.Key(chat, msg.Reaction.MessageID)
		d, ok := s.deps.Decisions.FromReaction(msg.Reaction.Emoji)
		if !ok {
			return nil
		}
		s.decide(key, d)
		return nil
	}

	if quoted := msg.Message.QuotedMessageID(); quoted != "" {
		key := jobs.Key(chat, quoted)
		if job, ok := s.deps.Jobs.Get(key); ok {
			d, outcome := s.deps.Decisions.FromReply(msg.Message.PlainText())
			if outcome == decision.OutcomeUsage {
				if !job.Decided() {
					s.reply(ctx, msg.Channel, chat, msg.Message.ID, decision.UsageHint())
				}
				return nil
			}
			s.decide(key, d)
			return nil
		}
	}

	_, err := s.deps.Router.Dispatch(ctx, msg)
	return err
}

// HandleRequest searches for the query and posts the preview that opens a job.
// Failures are reported to the chat and returned.
func (s *Service) HandleRequest(ctx context.Context, req Request) error {
	log := s.logger.With(slog.String("channel", req.Channel.String()), slog.String("chat", req.Chat))
	s.react(ctx, req.Channel, req.Chat, req.MessageID, ReactionSearching)

	err := s.openJob(ctx, log, req)
	if err != nil {
		log.Warn("play request failed", slog.String("query", req.Query), slog.Any("error", err))
		s.fail(ctx, req.Channel, req.Chat, req.MessageID, err)
		s.recordRequest(req.Channel, failureReason(err))
		return err
	}
	s.react(ctx, req.Channel, req.Chat, req.MessageID, ReactionDone)
	s.recordRequest(req.Channel, "ok")
	return nil
}

func (s *Service) openJob(ctx context.Context, log *slog.Logger, req Request) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ErrNoResults
	}
	item, err := s.deps.Searcher.Search(ctx, query)
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			return ErrNoResults
		}
		return err
	}
	if item.Duration > s.cfg.MaxDuration {
		return &TooLongError{Duration: item.Duration, Max: s.cfg.MaxDuration}
	}

	msg := s.deps.Previews.Render(ctx, item)
	msg.Reply = &channel.ReplyRef{Target: req.Chat, MessageID: req.MessageID}
	previewID, err := s.deps.Transport.Send(ctx, req.Channel, channel.OutboundMessage{Target: req.Chat, Message: msg})
	if err != nil && len(msg.Attachments) > 0 {
		log.Warn("image preview failed, retrying as text", slog.Any("error", err))
		previewID, err = s.deps.Transport.Send(ctx, req.Channel, channel.OutboundMessage{
			Target:  req.Chat,
			Message: channel.Message{Text: preview.Caption(item), Reply: msg.Reply},
		})
	}
	if err != nil {
		return fmt.Errorf("%w: send preview: %w", ErrDelivery, err)
	}
	if strings.TrimSpace(previewID) == "" {
		return fmt.Errorf("%w: transport returned no preview id", ErrDelivery)
	}

	job := &jobs.PendingJob{
		Key:              jobs.Key(req.Chat, previewID),
		Channel:          req.Channel,
		Chat:             req.Chat,
		RequestMessageID: req.MessageID,
		PreviewMessageID: previewID,
		Locator:          item.URL,
		Title:            item.Title,
		Thumbnail:        item.Thumbnail,
		QualityHint:      s.cfg.DefaultQuality,
	}
	if err := s.deps.Jobs.Create(job); err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	log.Info("job opened", slog.String("key", job.Key), slog.String("title", job.Title))
	return nil
}

// decide starts the download for key if the job is live and undecided.
// Later signals for the same job are dropped silently.
func (s *Service) decide(key string, d decision.Decision) {
	job, ok := s.deps.Jobs.Get(key)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.deps.Jobs.MarkDecided(key) {
		return
	}
	s.logger.Info("decision accepted",
		slog.String("key", key), slog.String("kind", string(d.Kind)), slog.String("mode", string(d.Mode)))
	s.wg.Add(1)
	go s.run(job, d)
}

// Shutdown stops accepting work and waits for running downloads. When ctx
// ends first the remaining downloads are cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) react(ctx context.Context, ch channel.ChannelType, chat, messageID, emoji string) {
	if strings.TrimSpace(messageID) == "" {
		return
	}
	if err := s.deps.Transport.React(ctx, ch, chat, messageID, emoji); err != nil {
		s.logger.Debug("status reaction failed", slog.String("emoji", emoji), slog.Any("error", err))
	}
}

func (s *Service) reply(ctx context.Context, ch channel.ChannelType, chat, messageID, text string) {
	msg := channel.Message{Text: text}
	if strings.TrimSpace(messageID) != "" {
		msg.Reply = &channel.ReplyRef{Target: chat, MessageID: messageID}
	}
	if _, err := s.deps.Transport.Send(ctx, ch, channel.OutboundMessage{Target: chat, Message: msg}); err != nil {
		s.logger.Warn("reply failed", slog.String("chat", chat), slog.Any("error", err))
	}
}

// fail reports err to the chat once. It runs on a detached context so a
// cancelled job still gets its message out.
func (s *Service) fail(ctx context.Context, ch channel.ChannelType, chat, messageID string, err error) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	s.react(notifyCtx, ch, chat, messageID, ReactionFailed)
	s.reply(notifyCtx, ch, chat, messageID, userMessage(err))
}

func (s *Service) recordRequest(ch channel.ChannelType, outcome string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.RequestFinished(ch, outcome)
	}
}
