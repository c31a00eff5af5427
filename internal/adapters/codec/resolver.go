// Package codec resolves advertised payload entries against the codecs
// known to pion/webrtc.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrUnknownFormat = errors.New("unknown format")
	ErrKindMismatch  = errors.New("format does not match media kind")
)

type key struct {
	kind domain.MediaKind
	name string
}

type entry struct {
	mime      string
	clockRate uint32
}

// Resolver maps (kind, encoding name) to a webrtc codec capability. The
// advertised clock rate and channel count win over the table defaults.
type Resolver struct {
	known map[key]entry
}

func NewResolver() *Resolver {
	r := &Resolver{known: make(map[key]entry)}
	for _, c := range []struct {
		kind      domain.MediaKind
		mime      string
		clockRate uint32
	}{
		{domain.MediaAudio, webrtc.MimeTypeOpus, 48000},
		{domain.MediaAudio, webrtc.MimeTypeG722, 8000},
		{domain.MediaAudio, webrtc.MimeTypePCMU, 8000},
		{domain.MediaAudio, webrtc.MimeTypePCMA, 8000},
		{domain.MediaVideo, webrtc.MimeTypeVP8, 90000},
		{domain.MediaVideo, webrtc.MimeTypeVP9, 90000},
		{domain.MediaVideo, webrtc.MimeTypeH264, 90000},
		{domain.MediaVideo, webrtc.MimeTypeAV1, 90000},
		{domain.MediaVideo, webrtc.MimeTypeRTX, 90000},
	} {
		r.Register(c.kind, c.mime, c.clockRate)
	}
	return r
}

// Register adds mime under its encoding name, e.g. "audio/opus" as "opus".
func (r *Resolver) Register(kind domain.MediaKind, mime string, clockRate uint32) {
	_, name, ok := strings.Cut(mime, "/")
	if !ok {
		name = mime
	}
	r.known[key{kind: kind, name: strings.ToLower(name)}] = entry{mime: mime, clockRate: clockRate}
}

func (r *Resolver) Resolve(kind domain.MediaKind, name string, clockRate uint32, channels uint16) (domain.Format, error) {
	k := key{kind: kind, name: strings.ToLower(name)}
	e, ok := r.known[k]
	if !ok {
		for _, other := range domain.MediaKinds {
			if _, found := r.known[key{kind: other, name: k.name}]; found && other != kind {
				return domain.Format{}, fmt.Errorf("%w: %s is %s", ErrKindMismatch, name, other)
			}
		}
		return domain.Format{}, fmt.Errorf("%w: %s/%s", ErrUnknownFormat, kind, name)
	}
	if clockRate == 0 {
		clockRate = e.clockRate
	}
	return domain.Format{
		Kind: kind,
		Name: name,
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  e.mime,
			ClockRate: clockRate,
			Channels:  channels,
		},
	}, nil
}
