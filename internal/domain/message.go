package domain

// Action is the signaling action carried by a negotiation message.
type Action string

const (
	ActionSessionInitiate  Action = "session-initiate"
	ActionSessionAccept    Action = "session-accept"
	ActionSessionTerminate Action = "session-terminate"
)

// MessageType mirrors request/response semantics of the signaling channel.
type MessageType string

const (
	TypeSet    MessageType = "set"
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
)

// Source binds a remote participant to the SSRC it sends on.
type Source struct {
	Participant ParticipantID `json:"participant"`
	SSRC        uint32        `json:"ssrc"`
}

type Description struct {
	Media        string        `json:"media"`
	SSRC         uint32        `json:"ssrc,omitempty"`
	PayloadTypes []PayloadType `json:"payload-types"`
	Sources      []Source      `json:"sources,omitempty"`
}

type Fingerprint struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
	Setup string `json:"setup,omitempty"`
}

type Transport struct {
	Ufrag       string       `json:"ufrag,omitempty"`
	Pwd         string       `json:"pwd,omitempty"`
	Candidates  []Candidate  `json:"candidates,omitempty"`
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
}

// Content is the per-media-kind section of a negotiation message.
type Content struct {
	Name        string      `json:"name"`
	Creator     string      `json:"creator,omitempty"`
	Description Description `json:"description"`
	Transport   Transport   `json:"transport"`
}

// Message is a signaling message exchanged with the conference focus.
type Message struct {
	ID         string        `json:"id"`
	Type       MessageType   `json:"type"`
	From       ParticipantID `json:"from"`
	To         ParticipantID `json:"to"`
	Action     Action        `json:"action,omitempty"`
	SID        string        `json:"sid,omitempty"`
	Conference ConferenceID  `json:"conference,omitempty"`
	Contents   []Content     `json:"contents,omitempty"`
}

// ConferenceID resolves the conference the message belongs to, falling back
// to the node of the sender's room address.
func (m *Message) ConferenceID() ConferenceID {
	if m.Conference != "" {
		return m.Conference
	}
	return ConferenceID(m.From.Node())
}

// ContentFor returns the first content whose name or description matches kind.
func (m *Message) ContentFor(kind MediaKind) (*Content, bool) {
	for i := range m.Contents {
		c := &m.Contents[i]
		if c.Name == string(kind) || c.Description.Media == string(kind) {
			return c, true
		}
	}
	return nil, false
}

// Result builds the acknowledgement for m.
func (m *Message) Result() *Message {
	return &Message{
		ID:         m.ID,
		Type:       TypeResult,
		From:       m.To,
		To:         m.From,
		Conference: m.Conference,
	}
}
