package domain

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConferenceID(t *testing.T) {
	id, err := NewConferenceID("  room1 ")
	require.NoError(t, err)
	assert.Equal(t, ConferenceID("room1"), id)

	_, err = NewConferenceID(" ")
	assert.ErrorIs(t, err, ErrConferenceIDEmpty)
	_, err = NewConferenceID(strings.Repeat("a", MaxConferenceIDLen+1))
	assert.ErrorIs(t, err, ErrConferenceIDTooLong)
}

func TestParticipantID(t *testing.T) {
	p := ParticipantID("room1@conference.example.com/focus")
	assert.Equal(t, "room1", p.Node())
	assert.Equal(t, "conference.example.com", p.Domain())
	assert.Equal(t, "focus", p.Resource())
	assert.Equal(t, ParticipantID("room1@conference.example.com"), p.Bare())

	bare := ParticipantID("conference.example.com")
	assert.Empty(t, bare.Node())
	assert.Equal(t, "conference.example.com", bare.Domain())
	assert.Empty(t, bare.Resource())

	assert.Equal(t, ParticipantID("room1@conference.example.com"), ConferenceID("room1").RoomJID("conference.example.com"))
}

func TestMessageConferenceID(t *testing.T) {
	msg := &Message{From: "room1@conference.example.com/focus"}
	assert.Equal(t, ConferenceID("room1"), msg.ConferenceID())

	msg.Conference = "explicit"
	assert.Equal(t, ConferenceID("explicit"), msg.ConferenceID())
}

func TestMessageContentFor(t *testing.T) {
	msg := &Message{Contents: []Content{
		{Name: "a0", Description: Description{Media: "audio"}},
		{Name: "video"},
	}}

	c, ok := msg.ContentFor(MediaAudio)
	require.True(t, ok)
	assert.Equal(t, "a0", c.Name)

	c, ok = msg.ContentFor(MediaVideo)
	require.True(t, ok)
	assert.Equal(t, "video", c.Name)

	_, ok = (&Message{}).ContentFor(MediaAudio)
	assert.False(t, ok)
}

func TestMessageResult(t *testing.T) {
	msg := &Message{ID: "1", Type: TypeSet, From: "a", To: "b", Action: ActionSessionInitiate, Conference: "room1"}
	res := msg.Result()
	assert.Equal(t, "1", res.ID)
	assert.Equal(t, TypeResult, res.Type)
	assert.Equal(t, ParticipantID("b"), res.From)
	assert.Equal(t, ParticipantID("a"), res.To)
	assert.Empty(t, res.Action)
}

func TestCandidateTypePrecedence(t *testing.T) {
	assert.Less(t, CandidateHost.Precedence(), CandidateServerReflexive.Precedence())
	assert.Equal(t, CandidatePeerReflexive.Precedence(), CandidateServerReflexive.Precedence())
	assert.Less(t, CandidateServerReflexive.Precedence(), CandidateRelayed.Precedence())

	_, err := ParseCandidateType("bogus")
	assert.ErrorIs(t, err, ErrUnknownCandidateType)
}

func TestCandidateString(t *testing.T) {
	c := Candidate{Type: CandidateServerReflexive, Component: 1, Protocol: "udp", IP: "203.0.113.9", Port: 6000, RelAddr: "192.0.2.1", RelPort: 5000}
	assert.True(t, c.HasRelated())
	assert.Equal(t, "srflx 1 udp 203.0.113.9:6000 rel 192.0.2.1:5000", c.String())
}

func TestMediaKind(t *testing.T) {
	k, err := ParseMediaKind("video")
	require.NoError(t, err)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, k.CodecType())

	_, err = ParseMediaKind("data")
	assert.ErrorIs(t, err, ErrUnknownMediaKind)
}

func TestFormatString(t *testing.T) {
	f := Format{Name: "opus", RTPCodecCapability: webrtc.RTPCodecCapability{ClockRate: 48000, Channels: 2}}
	assert.Equal(t, "opus/48000/2", f.String())
	f = Format{Name: "VP8", RTPCodecCapability: webrtc.RTPCodecCapability{ClockRate: 90000}}
	assert.Equal(t, "VP8/90000", f.String())
}
