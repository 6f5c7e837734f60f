package channelchecker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/healthcheck"
)

type fakeConnectionObserver struct {
	items []channel.ConnectionStatus
}

func (f *fakeConnectionObserver) ConnectionStatuses() []channel.ConnectionStatus {
	return f.items
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckerOneTransportDown(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	checker := NewChecker(newTestLogger(), &fakeConnectionObserver{
		items: []channel.ConnectionStatus{
			{ConfigID: "telegram", ChannelType: "telegram", Running: true, UpdatedAt: now},
			{ConfigID: "discord", ChannelType: "discord", LastError: "websocket: bad handshake", UpdatedAt: now},
		},
	})

	items := checker.ListChecks(context.Background())
	if len(items) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(items))
	}
	if items[0].ID != "channel.connection.discord" || items[0].Status != healthcheck.StatusWarn {
		t.Fatalf("a down transport next to a live one should warn: %+v", items[0])
	}
	if items[0].Detail != "websocket: bad handshake" {
		t.Fatalf("unexpected detail: %s", items[0].Detail)
	}
	if items[1].ID != "channel.connection.telegram" || items[1].Status != healthcheck.StatusOK {
		t.Fatalf("unexpected second check: %+v", items[1])
	}
	if report := healthcheck.Evaluate(context.Background(), checker); !report.Healthy() {
		t.Fatalf("bot should stay healthy with one transport up: %+v", report)
	}
}

func TestCheckerAllTransportsDown(t *testing.T) {
	t.Parallel()

	checker := NewChecker(newTestLogger(), &fakeConnectionObserver{
		items: []channel.ConnectionStatus{{ConfigID: "telegram", ChannelType: "telegram", LastError: "401"}},
	})
	items := checker.ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusError {
		t.Fatalf("expected error check, got %+v", items)
	}
}

func TestCheckerNoConnections(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), &fakeConnectionObserver{}).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusError {
		t.Fatalf("expected a single error check, got %+v", items)
	}
}

func TestCheckerNilObserver(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), nil).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusWarn {
		t.Fatalf("expected a single warn check, got %+v", items)
	}
}
