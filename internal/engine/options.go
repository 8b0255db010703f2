package engine

import (
	"log/slog"

	"github.com/dshills/substrfind/internal/storage"
	"github.com/dshills/substrfind/pkg/types"
)

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its components
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventSink sets the function that receives every event. It is called
// synchronously from the goroutine that produced the event and must not block.
func WithEventSink(sink func(types.Event)) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithStorage enables the journal. The engine takes ownership of store and
// closes it in Close.
func WithStorage(store storage.Storage) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithoutWatcher disables change watching regardless of configuration
func WithoutWatcher() Option {
	return func(e *Engine) {
		e.noWatcher = true
	}
}
