package domain

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var ErrUnknownMediaKind = errors.New("unknown media kind")

// MediaKind is the negotiated stream kind, matching the content name on the wire.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// MediaKinds lists the kinds a recorder negotiates, in negotiation order.
var MediaKinds = []MediaKind{MediaAudio, MediaVideo}

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaAudio, MediaVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMediaKind, s)
}

func (k MediaKind) String() string { return string(k) }

// CodecType maps the kind onto the webrtc codec type.
func (k MediaKind) CodecType() webrtc.RTPCodecType {
	switch k {
	case MediaAudio:
		return webrtc.RTPCodecTypeAudio
	case MediaVideo:
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecType(0)
}

// Parameter is a format-specific name/value pair (fmtp).
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PayloadType is one entry of an advertised format list.
type PayloadType struct {
	ID         uint8       `json:"id"`
	Name       string      `json:"name"`
	ClockRate  uint32      `json:"clockrate"`
	Channels   uint16      `json:"channels,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Format is a resolved media format descriptor.
type Format struct {
	Kind MediaKind `json:"kind"`
	Name string    `json:"name"`
	webrtc.RTPCodecCapability
}

func (f Format) String() string {
	if f.Channels > 1 {
		return fmt.Sprintf("%s/%d/%d", f.Name, f.ClockRate, f.Channels)
	}
	return fmt.Sprintf("%s/%d", f.Name, f.ClockRate)
}
