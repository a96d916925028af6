// Package notify delivers settled-transfer events to external sinks.
// Every sink is best-effort: errors are reported to the caller for logging
// and never influence the ledger.
package notify

import (
	"context"
	"errors"
	"sync"

	"signed-transfer-gateway/internal/core/domain"
	"signed-transfer-gateway/internal/core/ports"
)

// Nop discards every event.
type Nop struct{}

// Notify implements ports.NotificationSink.
func (Nop) Notify(context.Context, *domain.SettlementEvent) error { return nil }

// Fanout delivers each event to every sink concurrently, so a slow sink
// does not hold back the others.
type Fanout struct {
	sinks []ports.NotificationSink
}

// NewFanout combines sinks. With no sinks it behaves like Nop.
func NewFanout(sinks ...ports.NotificationSink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Notify implements ports.NotificationSink.
func (f *Fanout) Notify(ctx context.Context, event *domain.SettlementEvent) error {
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		wg.Add(1)
		go func(i int, s ports.NotificationSink) {
			defer wg.Done()
			errs[i] = s.Notify(ctx, event)
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Len reports how many sinks are attached.
func (f *Fanout) Len() int { return len(f.sinks) }
