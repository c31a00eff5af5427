package core

import (
	"context"

	"github.com/dkeye/Recorder/internal/domain"
)

// Component ids used for every media kind.
const (
	ComponentRTP  uint16 = 1
	ComponentRTCP uint16 = 2
)

// ConnectivityState is the terminal state reported by an Agent.
type ConnectivityState int

const (
	ConnectivityCompleted ConnectivityState = iota
	ConnectivityFailed
)

func (s ConnectivityState) String() string {
	switch s {
	case ConnectivityCompleted:
		return "completed"
	case ConnectivityFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is delivered exactly once on the channel returned by Agent.Establish.
type Outcome struct {
	State ConnectivityState
	Err   error
}

// Agent is the per-session connectivity establishment engine.
type Agent interface {
	// Harvest allocates the components for kind. Calling it again for the same
	// kind returns the components allocated by the first call.
	Harvest(ctx context.Context, kind domain.MediaKind) ([]*Component, error)
	Component(kind domain.MediaKind, id uint16) (*Component, bool)
	Components(kind domain.MediaKind) []*Component
	LocalCredentials() (ufrag, pwd string)
	SetRemoteCredentials(kind domain.MediaKind, ufrag, pwd string) error
	// Generation is the candidate generation the agent currently accepts.
	Generation() int
	// Establish starts connectivity checks for every harvested stream. The
	// returned channel receives one Outcome; cancelling ctx aborts the checks.
	Establish(ctx context.Context) (<-chan Outcome, error)
	// Close releases every harvested component.
	Close() error
}

// AgentFactory creates a fresh Agent for a conference.
type AgentFactory interface {
	NewAgent(conf domain.ConferenceID) (Agent, error)
}

// FormatResolver maps an advertised payload entry to a format descriptor.
type FormatResolver interface {
	Resolve(kind domain.MediaKind, name string, clockRate uint32, channels uint16) (domain.Format, error)
}
