// Package store persists the conversation window.
//
// Two backends exist: a session-scoped in-memory store and a durable SQLite
// store. Both keep at most the configured number of trailing messages.
package store

import (
	"context"
	"fmt"

	"github.com/context-assistant/three.js/internal/types"
)

// WindowStore persists the trailing message window of one conversation.
type WindowStore interface {
	Load(ctx context.Context) ([]types.Message, error)
	Save(ctx context.Context, window []types.Message) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string // memory, sqlite
	Path      string // sqlite database file
	SessionID string
	Capacity  int
}

// Open returns the backend named by opts.Backend.
func Open(opts Options) (WindowStore, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(opts.Capacity), nil
	case "sqlite":
		return OpenSQLite(opts.Path, opts.SessionID, opts.Capacity)
	default:
		return nil, fmt.Errorf("unknown window store backend %q", opts.Backend)
	}
}

// trim returns the last capacity messages of window.
func trim(window []types.Message, capacity int) []types.Message {
	if capacity > 0 && len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return append([]types.Message(nil), window...)
}
