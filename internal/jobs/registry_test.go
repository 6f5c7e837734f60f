package jobs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newJob(key string) *PendingJob {
	return &PendingJob{Key: key, Chat: "c", Locator: "https://youtu.be/abc", Title: "Song"}
}

func TestCreateGetEvict(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Minute, nil)
	if err := r.Create(newJob("c:1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(newJob("c:1")); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("duplicate Create = %v, want ErrDuplicateJob", err)
	}
	job, ok := r.Get("c:1")
	if !ok || job.Title != "Song" {
		t.Fatalf("Get = (%+v, %v)", job, ok)
	}
	if job.ExpiresAt.Sub(job.CreatedAt) != time.Minute {
		t.Fatalf("expiry window = %s, want 1m", job.ExpiresAt.Sub(job.CreatedAt))
	}
	r.Evict("c:1")
	if _, ok := r.Get("c:1"); ok {
		t.Fatal("evicted job should be absent")
	}
	if r.MarkDecided("c:1") {
		t.Fatal("MarkDecided on an absent job should be false")
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Minute, nil)
	for _, job := range []*PendingJob{nil, {Locator: "https://x"}, {Key: "c:1"}} {
		if err := r.Create(job); !errors.Is(err, ErrInvalidJob) {
			t.Fatalf("Create(%+v) = %v, want ErrInvalidJob", job, err)
		}
	}
}

func TestMarkDecidedSingleFlight(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Minute, nil)
	if err := r.Create(newJob("c:2")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.MarkDecided("c:2") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
	job, _ := r.Get("c:2")
	if !job.Decided() {
		t.Fatal("job should be marked decided")
	}
}

func TestExpiredJobIsAbsent(t *testing.T) {
	t.Parallel()

	var expired atomic.Int32
	r := NewRegistry(nil, 20*time.Millisecond, func(*PendingJob) { expired.Add(1) })
	if err := r.Create(newJob("c:3")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok := r.Get("c:3"); ok {
		t.Fatal("expired job should be absent")
	}
	if r.MarkDecided("c:3") {
		t.Fatal("expired job must not be decidable")
	}
	if err := r.Create(newJob("c:3")); err != nil {
		t.Fatalf("key should be reusable after expiry: %v", err)
	}
}

func TestSweepFiresExpiryHook(t *testing.T) {
	t.Parallel()

	var expired atomic.Int32
	r := NewRegistry(nil, 10*time.Millisecond, func(*PendingJob) { expired.Add(1) })
	if err := r.Create(newJob("c:4")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(newJob("c:5")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Evict("c:5")
	time.Sleep(30 * time.Millisecond)
	r.Sweep()

	deadline := time.Now().Add(time.Second)
	for expired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := expired.Load(); got != 1 {
		t.Fatalf("expiry hook calls = %d, want 1", got)
	}
	if r.Len() != 0 {
		t.Fatalf("Len after sweep = %d, want 0", r.Len())
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Minute, nil)
	r.Stop()
	r.Start()
	r.Start()
	r.Stop()
	r.Stop()
}

func TestKey(t *testing.T) {
	t.Parallel()

	if got := Key(" -100 ", " 42 "); got != "-100:42" {
		t.Fatalf("Key = %q", got)
	}
}
