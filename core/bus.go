package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemorySignalBus dispatches signals synchronously to handlers registered
// for the signal name. Publish stops at the first handler error so the
// delivery pipeline observes downstream failures.
type InMemorySignalBus struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

func NewInMemorySignalBus() *InMemorySignalBus {
	return &InMemorySignalBus{handlers: map[string][]SignalHandler{}}
}

func (b *InMemorySignalBus) Subscribe(name string, handler SignalHandler) {
	if b == nil || handler == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], handler)
}

func (b *InMemorySignalBus) Publish(ctx context.Context, signal Signal) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]SignalHandler(nil), b.handlers[strings.TrimSpace(signal.Name)]...)
	b.mu.RUnlock()
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := handler.Handle(ctx, signal); err != nil {
			return err
		}
	}
	return nil
}

// NewSignal stamps identity and occurrence time onto a signal payload.
func NewSignal(name string, record IngestionRecord, cause error, now time.Time) Signal {
	signal := Signal{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		Record:     record,
		OccurredAt: now.UTC(),
	}
	if cause != nil {
		signal.Error = cause.Error()
	}
	return signal
}

var _ SignalBus = (*InMemorySignalBus)(nil)
