package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadySubscribed is returned when a second inbound handler is registered.
	ErrAlreadySubscribed = errors.New("inbound handler already subscribed")
	// ErrNotSubscribed is returned by Start when no inbound handler was registered.
	ErrNotSubscribed = errors.New("inbound handler not subscribed")
	// ErrNoChannelConfigured is returned when no enabled config exists for a channel type.
	ErrNoChannelConfigured = errors.New("channel not configured")
)

// Middleware wraps an InboundHandler to add cross-cutting behavior.
type Middleware func(next InboundHandler) InboundHandler

// ConnectionStatus describes runtime status for one configured channel connection.
type ConnectionStatus struct {
	ConfigID    string      `json:"config_id"`
	ChannelType ChannelType `json:"channel_type"`
	Running     bool        `json:"running"`
	LastError   string      `json:"last_error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Manager coordinates channel adapters, connection lifecycle and message dispatch.
// Connection handling lives in connection.go and the outbound pipeline in outbound.go.
type Manager struct {
	registry    *Registry
	configs     []ChannelConfig
	logger      *slog.Logger
	middlewares []Middleware

	mu             sync.Mutex
	handler        InboundHandler
	connections    map[string]*connectionEntry
	connectionMeta map[string]ConnectionStatus
}

// NewManager creates a Manager for the given adapter registry and platform configs.
func NewManager(log *slog.Logger, registry *Registry, configs []ChannelConfig) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:       registry,
		configs:        append([]ChannelConfig(nil), configs...),
		logger:         log.With(slog.String("component", "channel")),
		connections:    map[string]*connectionEntry{},
		connectionMeta: map[string]ConnectionStatus{},
	}
}

// Registry returns the adapter registry used by this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Use appends middleware to the inbound processing chain. Call before Start.
func (m *Manager) Use(mw ...Middleware) {
	m.middlewares = append(m.middlewares, mw...)
}

// Subscribe registers the single inbound handler. It must be called once, before Start.
func (m *Manager) Subscribe(handler InboundHandler) error {
	if handler == nil {
		return fmt.Errorf("inbound handler is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler != nil {
		return ErrAlreadySubscribed
	}
	m.handler = handler
	return nil
}

// Start connects every enabled config concurrently. Individual failures are
// recorded in the connection status; Start only fails when nothing connected.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	subscribed := m.handler != nil
	m.mu.Unlock()
	if !subscribed {
		return ErrNotSubscribed
	}
	m.logger.Info("manager start", slog.Int("configs", len(m.configs)))

	var (
		errMu     sync.Mutex
		merr      *multierror.Error
		connected int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, cfg := range m.configs {
		if cfg.Disabled {
			continue
		}
		g.Go(func() error {
			err := m.connect(gctx, cfg)
			errMu.Lock()
			defer errMu.Unlock()
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", cfg.ChannelType, err))
				return nil
			}
			connected++
			return nil
		})
	}
	_ = g.Wait()
	if connected == 0 && merr.ErrorOrNil() != nil {
		return fmt.Errorf("no channel connected: %w", merr.ErrorOrNil())
	}
	if err := merr.ErrorOrNil(); err != nil {
		m.logger.Warn("some channels failed to connect", slog.Any("error", err))
	}
	return nil
}

// Send delivers an outbound message and returns the platform id of the first
// message sent.
func (m *Manager) Send(ctx context.Context, channelType ChannelType, msg OutboundMessage) (string, error) {
	sender, err := m.registry.Sender(channelType)
	if err != nil {
		return "", err
	}
	cfg, err := m.configFor(channelType)
	if err != nil {
		return "", err
	}
	msg.Target = strings.TrimSpace(msg.Target)
	if msg.Target == "" {
		return "", fmt.Errorf("target is required")
	}
	policy := m.resolveOutboundPolicy(channelType)
	outbound, err := buildOutboundMessages(msg, policy)
	if err != nil {
		return "", err
	}
	m.logger.Debug("send outbound", slog.String("channel", channelType.String()), slog.String("target", msg.Target))
	firstID := ""
	for _, item := range outbound {
		id, err := m.sendWithConfig(ctx, sender, cfg, item, policy)
		if err != nil {
			m.logger.Error("send outbound failed", slog.String("channel", channelType.String()), slog.Any("error", err))
			return firstID, err
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

// React adds an emoji reaction on a channel message.
func (m *Manager) React(ctx context.Context, channelType ChannelType, target, messageID, emoji string) error {
	reactor, err := m.registry.Reactor(channelType)
	if err != nil {
		return err
	}
	cfg, err := m.configFor(channelType)
	if err != nil {
		return err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("target is required for reactions")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("message_id is required for reactions")
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return fmt.Errorf("emoji is required when adding a reaction")
	}
	return reactor.React(ctx, cfg, target, messageID, emoji)
}

// Shutdown stops all active connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("manager stop")
	m.stopAll(ctx)
	return nil
}

// ConnectionStatuses returns observed connection statuses sorted by channel type.
func (m *Manager) ConnectionStatuses() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ConnectionStatus, 0, len(m.connectionMeta))
	for _, status := range m.connectionMeta {
		items = append(items, status)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ChannelType == items[j].ChannelType {
			return items[i].ConfigID < items[j].ConfigID
		}
		return items[i].ChannelType < items[j].ChannelType
	})
	return items
}

func (m *Manager) configFor(channelType ChannelType) (ChannelConfig, error) {
	ct := normalizeChannelType(channelType)
	for _, cfg := range m.configs {
		if !cfg.Disabled && normalizeChannelType(cfg.ChannelType) == ct {
			return cfg, nil
		}
	}
	return ChannelConfig{}, fmt.Errorf("%w: %s", ErrNoChannelConfigured, channelType)
}
