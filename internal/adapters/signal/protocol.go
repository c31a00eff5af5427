package signal

import (
	"encoding/json"

	"github.com/dkeye/Recorder/internal/domain"
)

// Envelope types exchanged with the signaling gateway.
const (
	typeJoin    = "join"
	typeJoined  = "joined"
	typeLeave   = "leave"
	typeMessage = "message"
	typeError   = "error"
	typePing    = "ping"
	typePong    = "pong"
)

type envelope struct {
	Type        string               `json:"type"`
	ID          string               `json:"id,omitempty"`
	Conference  domain.ConferenceID  `json:"conference,omitempty"`
	Nickname    string               `json:"nickname,omitempty"`
	Participant domain.ParticipantID `json:"participant,omitempty"`
	Error       string               `json:"error,omitempty"`
	Message     *domain.Message      `json:"message,omitempty"`
}

func encode(env envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decode(data []byte) (envelope, error) {
	var env envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
