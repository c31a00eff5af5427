package core

import (
	"context"

	"github.com/dkeye/Recorder/internal/domain"
)

// Transport abstracts the messaging connection shared by all sessions.
// Owned by the adapter; Send must be safe for concurrent callers.
type Transport interface {
	// JoinRoom enters the conference room and returns the local participant id.
	JoinRoom(ctx context.Context, conf domain.ConferenceID, nickname string) (domain.ParticipantID, error)
	LeaveRoom(ctx context.Context, conf domain.ConferenceID) error
	Send(ctx context.Context, msg *domain.Message) error
}

// MessageHandler receives inbound signaling messages from a Transport.
type MessageHandler interface {
	Dispatch(msg *domain.Message) error
}
