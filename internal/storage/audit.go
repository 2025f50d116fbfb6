package storage

import (
	"context"
	"sync"

	"github.com/bobmcallan/vire-screener/internal/interfaces"
	"github.com/bobmcallan/vire-screener/internal/models"
)

// DefaultAuditCapacity bounds the in-memory audit log
const DefaultAuditCapacity = 500

// MemoryAuditSink keeps the most recent parse events in a ring buffer.
type MemoryAuditSink struct {
	mu       sync.Mutex
	events   []*models.ParseEvent
	next     int
	full     bool
	capacity int
}

// Compile-time check
var _ interfaces.AuditSink = (*MemoryAuditSink)(nil)

// NewMemoryAuditSink creates a sink holding up to capacity events
func NewMemoryAuditSink(capacity int) *MemoryAuditSink {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &MemoryAuditSink{
		events:   make([]*models.ParseEvent, capacity),
		capacity: capacity,
	}
}

func (s *MemoryAuditSink) RecordParse(_ context.Context, event *models.ParseEvent) error {
	if event == nil {
		return nil
	}
	cp := *event
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = &cp
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// ListParseEvents returns up to limit events, newest first
func (s *MemoryAuditSink) ListParseEvents(_ context.Context, limit int) ([]*models.ParseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = s.capacity
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*models.ParseEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.capacity) % s.capacity
		cp := *s.events[idx]
		out = append(out, &cp)
	}
	return out, nil
}
