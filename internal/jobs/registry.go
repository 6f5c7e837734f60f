// Package jobs tracks open media requests between the preview and the user's
// delivery choice.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/memohai/playbot/internal/channel"
)

// DefaultExpiry is how long a preview stays actionable.
const DefaultExpiry = 5 * time.Minute

var (
	// ErrDuplicateJob is returned when a live job already uses the key.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrInvalidJob is returned when a job lacks its key or locator.
	ErrInvalidJob = errors.New("job is missing key or locator")
)

// PendingJob is an open request awaiting a decision. Everything except the
// decided flag is immutable after Create.
type PendingJob struct {
	Key              string
	Channel          channel.ChannelType
	Chat             string
	RequestMessageID string
	PreviewMessageID string
	Locator          string
	Title            string
	Thumbnail        string
	QualityHint      string
	CreatedAt        time.Time
	ExpiresAt        time.Time

	decided atomic.Bool
}

// Decided reports whether a decision was already accepted for the job.
func (j *PendingJob) Decided() bool {
	return j.decided.Load()
}

// Key builds the correlation key for a preview message. Platform message ids
// are only unique within a chat.
func Key(chat, messageID string) string {
	return strings.TrimSpace(chat) + ":" + strings.TrimSpace(messageID)
}

// Registry holds pending jobs with a fixed expiry measured from creation.
type Registry struct {
	cache  *ttlcache.Cache[string, *PendingJob]
	expiry time.Duration
	logger *slog.Logger

	createMu sync.Mutex
	running  atomic.Bool
}

// NewRegistry creates a Registry. onExpire, when set, is invoked for every job
// dropped by the expiry window; it is not called for explicit evictions.
func NewRegistry(log *slog.Logger, expiry time.Duration, onExpire func(*PendingJob)) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	r := &Registry{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *PendingJob](expiry),
			ttlcache.WithDisableTouchOnHit[string, *PendingJob](),
		),
		expiry: expiry,
		logger: log.With(slog.String("service", "jobs")),
	}
	r.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *PendingJob]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		job := item.Value()
		r.logger.Info("job expired", slog.String("key", item.Key()), slog.Bool("decided", job.Decided()))
		if onExpire != nil {
			onExpire(job)
		}
	})
	return r
}

// Expiry returns the configured expiry window.
func (r *Registry) Expiry() time.Duration {
	return r.expiry
}

// Create stores job under job.Key and stamps its timestamps.
func (r *Registry) Create(job *PendingJob) error {
	if job == nil || strings.TrimSpace(job.Key) == "" || strings.TrimSpace(job.Locator) == "" {
		return ErrInvalidJob
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	if item := r.cache.Get(job.Key); item != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Key)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.ExpiresAt = now.Add(r.expiry)
	r.cache.Set(job.Key, job, ttlcache.DefaultTTL)
	return nil
}

// Get returns the live job for key. Expired jobs are absent even before the
// janitor removes them.
func (r *Registry) Get(key string) (*PendingJob, bool) {
	item := r.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// MarkDecided atomically claims the job for a single decision. It returns
// false when the job is absent or was already claimed.
func (r *Registry) MarkDecided(key string) bool {
	job, ok := r.Get(key)
	if !ok {
		return false
	}
	return job.decided.CompareAndSwap(false, true)
}

// Evict removes the job and cancels its expiry.
func (r *Registry) Evict(key string) {
	r.cache.Delete(key)
}

// Len returns the number of stored jobs, including expired ones not yet collected.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Start runs the expiry janitor in the background until Stop.
func (r *Registry) Start() {
	if r.running.CompareAndSwap(false, true) {
		go r.cache.Start()
	}
}

// Stop halts the janitor. The cache's stop channel is unbuffered, so Stop is a
// no-op unless Start ran.
func (r *Registry) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.cache.Stop()
	}
}

// Sweep drops expired jobs immediately, firing the expiry hook for each.
func (r *Registry) Sweep() {
	r.cache.DeleteExpired()
}
