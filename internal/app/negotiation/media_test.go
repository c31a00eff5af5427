package negotiation

import (
	"errors"
	"testing"

	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	fail map[string]bool
}

func (r stubResolver) Resolve(kind domain.MediaKind, name string, clockRate uint32, channels uint16) (domain.Format, error) {
	if r.fail[name] {
		return domain.Format{}, errors.New("no such codec")
	}
	return domain.Format{
		Kind: kind,
		Name: name,
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  string(kind) + "/" + name,
			ClockRate: clockRate,
			Channels:  channels,
		},
	}, nil
}

func audioContent(pts ...domain.PayloadType) *domain.Content {
	return &domain.Content{
		Name:        "audio",
		Description: domain.Description{Media: "audio", SSRC: 1111, PayloadTypes: pts},
	}
}

var (
	opus = domain.PayloadType{ID: 111, Name: "opus", ClockRate: 48000, Channels: 2}
	pcmu = domain.PayloadType{ID: 0, Name: "PCMU", ClockRate: 8000}
)

func TestNegotiate_TakesFirstPayloadType(t *testing.T) {
	n := NewMediaNegotiator(stubResolver{})

	res, err := n.Negotiate(domain.MediaAudio, audioContent(opus, pcmu), "focus@example.com/focus")
	require.NoError(t, err)
	assert.Equal(t, uint8(111), res.PayloadType.ID)
	assert.Equal(t, "opus", res.Format.Name)
	assert.Equal(t, uint32(48000), res.Format.ClockRate)

	res, err = n.Negotiate(domain.MediaAudio, audioContent(pcmu, opus), "focus@example.com/focus")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), res.PayloadType.ID)
	assert.Equal(t, "PCMU", res.Format.Name)
}

func TestNegotiate_EmptyPayloadListFails(t *testing.T) {
	n := NewMediaNegotiator(stubResolver{})

	_, err := n.Negotiate(domain.MediaVideo, &domain.Content{Name: "video"}, "focus@example.com/focus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPayloadTypes)
}

func TestNegotiate_UnresolvableFormatFails(t *testing.T) {
	n := NewMediaNegotiator(stubResolver{fail: map[string]bool{"opus": true}})

	_, err := n.Negotiate(domain.MediaAudio, audioContent(opus, pcmu), "focus@example.com/focus")
	assert.ErrorIs(t, err, ErrUnresolvableFormat)
}

func TestNegotiate_CollectsSourcesAndFingerprint(t *testing.T) {
	n := NewMediaNegotiator(stubResolver{})
	c := audioContent(opus)
	c.Description.Sources = []domain.Source{{Participant: "room@conference.example.com/alice", SSRC: 2222}}
	c.Transport.Fingerprint = &domain.Fingerprint{Hash: "sha-256", Value: "AB:CD"}

	res, err := n.Negotiate(domain.MediaAudio, c, "room@conference.example.com/focus")
	require.NoError(t, err)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, domain.ParticipantID("room@conference.example.com/focus"), res.Sources[0].Participant)
	assert.Equal(t, uint32(1111), res.Sources[0].SSRC)
	assert.Equal(t, uint32(2222), res.Sources[1].SSRC)
	require.NotNil(t, res.Fingerprint)
	assert.Equal(t, "AB:CD", res.Fingerprint.Value)
}
