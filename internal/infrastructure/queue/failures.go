package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FailureRecord describes a job that failed terminally
type FailureRecord struct {
	JobID      uuid.UUID `json:"job_id"`
	QueueName  string    `json:"queue_name"`
	Payload    string    `json:"payload"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	FailedAt   time.Time `json:"failed_at"`
}

// failureRing keeps the most recent terminal failures in memory, oldest overwritten first
type failureRing struct {
	mu    sync.Mutex
	items []FailureRecord
	next  int
	full  bool
}

func newFailureRing(capacity int) *failureRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &failureRing{items: make([]FailureRecord, capacity)}
}

func (r *failureRing) add(rec FailureRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = rec
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// recent returns up to limit records, newest first. limit <= 0 returns all.
func (r *failureRing) recent(limit int) []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.items)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]FailureRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}
