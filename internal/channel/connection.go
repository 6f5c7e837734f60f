package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type connectionEntry struct {
	config     ChannelConfig
	connection Connection
}

func (m *Manager) connect(ctx context.Context, cfg ChannelConfig) error {
	if cfg.ID == "" {
		cfg.ID = cfg.ChannelType.String()
	}
	receiver, err := m.registry.Receiver(cfg.ChannelType)
	if err != nil {
		m.markConnectionStatus(cfg, false, err)
		return err
	}

	m.mu.Lock()
	if existing, ok := m.connections[cfg.ID]; ok && existing != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.logger.Info("adapter start",
		slog.String("channel", cfg.ChannelType.String()),
		slog.String("config_id", cfg.ID),
	)
	handler := m.handleInbound
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	// Decouple long-lived adapter connections from the startup context.
	conn, err := receiver.Connect(context.WithoutCancel(ctx), cfg, handler)
	if err != nil {
		m.markConnectionStatus(cfg, false, err)
		m.logger.Error("adapter start failed",
			slog.String("channel", cfg.ChannelType.String()),
			slog.String("config_id", cfg.ID),
			slog.Any("error", err),
		)
		return err
	}

	m.mu.Lock()
	m.connections[cfg.ID] = &connectionEntry{config: cfg, connection: conn}
	m.setConnectionStatusLocked(cfg, true, nil)
	m.mu.Unlock()
	return nil
}

func (m *Manager) handleInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage) (err error) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return ErrNotSubscribed
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("inbound handler panic",
				slog.String("channel", cfg.ChannelType.String()),
				slog.Any("panic", r),
			)
			err = fmt.Errorf("inbound handler panic: %v", r)
		}
	}()
	if msg.Channel == "" {
		msg.Channel = cfg.ChannelType
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	return handler(ctx, cfg, msg)
}

func (m *Manager) stopAll(ctx context.Context) {
	m.mu.Lock()
	entries := make([]*connectionEntry, 0, len(m.connections))
	for id, entry := range m.connections {
		entries = append(entries, entry)
		delete(m.connections, id)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		if entry == nil || entry.connection == nil {
			continue
		}
		err := entry.connection.Stop(ctx)
		if err != nil && !errors.Is(err, ErrStopNotSupported) {
			m.logger.Warn("adapter stop failed",
				slog.String("channel", entry.config.ChannelType.String()),
				slog.String("config_id", entry.config.ID),
				slog.Any("error", err),
			)
		}
		m.markConnectionStatus(entry.config, false, nil)
	}
}

func (m *Manager) markConnectionStatus(cfg ChannelConfig, running bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setConnectionStatusLocked(cfg, running, err)
}

func (m *Manager) setConnectionStatusLocked(cfg ChannelConfig, running bool, err error) {
	status := ConnectionStatus{
		ConfigID:    cfg.ID,
		ChannelType: cfg.ChannelType,
		Running:     running,
		UpdatedAt:   time.Now().UTC(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	m.connectionMeta[cfg.ID] = status
}
