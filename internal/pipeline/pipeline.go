// Package pipeline holds the shapes shared between the aggregator and its
// providers, kept separate from both so neither side has to import the
// other: the central channel's Result/Sender, and the SourceProvider
// capability set every concrete provider (feed, chat) implements.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/aclr/agg-go/internal/models"
)

// Result is what providers push onto the central channel: either a
// successfully-parsed Update, or an error the dispatcher should log and
// continue past.
type Result struct {
	Update *models.Update
	Err    error
}

// Sender wraps the central channel's send side in a mutex. Go channels
// already support concurrent sends from multiple goroutines without one;
// the mutex exists only to mirror the single-owner-sender constraint the
// engine this was ported from imposes on its channel primitive, per the
// "shared mutable senders" design note — fine-grained, never held across
// upstream I/O.
type Sender struct {
	mu sync.Mutex
	ch chan Result
}

func NewSender(ch chan Result) *Sender {
	return &Sender{ch: ch}
}

// Send blocks if the channel is full (back-pressure is intentional: a full
// central channel blocks producers).
func (s *Sender) Send(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch <- r
}

// SourceProvider is the capability set both concrete providers expose, so
// the aggregator's dispatcher can route by Update variant without
// downcasting to a concrete provider type.
type SourceProvider interface {
	GetSourceKind() models.SourceKind
	Run(ctx context.Context, sender *Sender)
	SearchSource(ctx context.Context, query string) ([]models.Source, error)
	Synchronize(ctx context.Context, depth time.Duration) error
	ProcessUpdates(ctx context.Context, update *models.Update) error
}
