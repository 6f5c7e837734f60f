// Package channelchecker reports chat transport connectivity.
package channelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/healthcheck"
)

const checkType = "channel.connection"

// ConnectionObserver reads runtime channel connection statuses.
type ConnectionObserver interface {
	ConnectionStatuses() []channel.ConnectionStatus
}

// Checker reports one check per configured transport. A transport that is
// down is an error only when no other transport is serving requests.
type Checker struct {
	logger   *slog.Logger
	observer ConnectionObserver
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, observer ConnectionObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "channel")),
		observer: observer,
	}
}

// ListChecks implements healthcheck.Checker.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx != nil && ctx.Err() != nil {
		return nil
	}
	if c.observer == nil {
		c.logger.Warn("channel observer is not configured")
		return []healthcheck.CheckResult{{
			ID:      checkType + ".service",
			Type:    checkType,
			Status:  healthcheck.StatusWarn,
			Summary: "Channel checker service is not available.",
		}}
	}

	statuses := c.observer.ConnectionStatuses()
	if len(statuses) == 0 {
		return []healthcheck.CheckResult{{
			ID:      checkType + ".none",
			Type:    checkType,
			Status:  healthcheck.StatusError,
			Summary: "No channel is connected.",
		}}
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ConfigID < statuses[j].ConfigID
	})

	serving := 0
	for _, st := range statuses {
		if st.Running {
			serving++
		}
	}
	downStatus := healthcheck.StatusError
	if serving > 0 {
		downStatus = healthcheck.StatusWarn
	}

	checks := make([]healthcheck.CheckResult, 0, len(statuses))
	for _, st := range statuses {
		name := strings.TrimSpace(st.ChannelType.String())
		if name == "" {
			name = "unknown"
		}
		id := strings.TrimSpace(st.ConfigID)
		if id == "" {
			id = name
		}
		item := healthcheck.CheckResult{
			ID:       checkType + "." + id,
			Type:     checkType,
			Subtitle: name,
			Status:   healthcheck.StatusOK,
			Summary:  fmt.Sprintf("Channel %s is connected.", name),
			Metadata: map[string]any{"running": st.Running},
		}
		if !st.UpdatedAt.IsZero() {
			item.Metadata["updated_at"] = st.UpdatedAt.UTC().Format(time.RFC3339)
		}
		if !st.Running {
			item.Status = downStatus
			item.Summary = fmt.Sprintf("Channel %s is not connected.", name)
			item.Detail = strings.TrimSpace(st.LastError)
		}
		checks = append(checks, item)
	}
	return checks
}
