package bridge

import (
	"errors"
	"fmt"

	"github.com/context-assistant/three.js/internal/types"
)

// Kind classifies a bridge failure.
type Kind int

const (
	// Timeout: the peer never reported ready within the configured bound.
	Timeout Kind = iota + 1
	// PeerUnreachable: the peer context cannot be accessed at all.
	PeerUnreachable
	// InjectionFailed: the bootstrap payload could not be installed.
	InjectionFailed
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case PeerUnreachable:
		return "peer unreachable"
	case InjectionFailed:
		return "injection failed"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *Error of the same kind.
var (
	ErrTimeout         = errors.New("bridge: timeout")
	ErrPeerUnreachable = errors.New("bridge: peer unreachable")
	ErrInjectionFailed = errors.New("bridge: injection failed")

	// ErrInaccessible is returned by Peer implementations when the peer context
	// cannot be reached (closed page, boundary violation).
	ErrInaccessible = errors.New("peer context inaccessible")
)

// Error is returned by Acquire. Bridge errors are never fatal: callers surface
// them as warnings and continue without capability-backed features.
type Error struct {
	Kind     Kind
	PaneType types.PaneType
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bridge %s: %s: %v", e.PaneType, e.Kind, e.Err)
	}
	return fmt.Sprintf("bridge %s: %s", e.PaneType, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == Timeout
	case ErrPeerUnreachable:
		return e.Kind == PeerUnreachable
	case ErrInjectionFailed:
		return e.Kind == InjectionFailed
	}
	return false
}
