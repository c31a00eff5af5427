package negotiation

import (
	"errors"
	"fmt"

	"github.com/dkeye/Recorder/internal/core"
	"github.com/dkeye/Recorder/internal/domain"
)

var (
	ErrNoPayloadTypes     = errors.New("no payload types advertised")
	ErrUnresolvableFormat = errors.New("unresolvable payload format")
)

// Negotiated is what a single media kind settles on.
type Negotiated struct {
	Kind        domain.MediaKind
	Format      domain.Format
	PayloadType domain.PayloadType
	Sources     []domain.Source
	Fingerprint *domain.Fingerprint
}

// MediaNegotiator takes the first advertised payload type of each media
// kind. There is no intersection with local capabilities.
type MediaNegotiator struct {
	formats core.FormatResolver
}

func NewMediaNegotiator(formats core.FormatResolver) *MediaNegotiator {
	return &MediaNegotiator{formats: formats}
}

// Negotiate derives kind's parameters from content. The description-level
// SSRC is attributed to initiator; explicit sources follow it in order.
func (n *MediaNegotiator) Negotiate(
	kind domain.MediaKind,
	content *domain.Content,
	initiator domain.ParticipantID,
) (*Negotiated, error) {
	pts := content.Description.PayloadTypes
	if len(pts) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoPayloadTypes)
	}
	pt := pts[0]

	format, err := n.formats.Resolve(kind, pt.Name, pt.ClockRate, pt.Channels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s/%d: %v", kind, ErrUnresolvableFormat, pt.Name, pt.ClockRate, err)
	}

	res := &Negotiated{
		Kind:        kind,
		Format:      format,
		PayloadType: pt,
		Fingerprint: content.Transport.Fingerprint,
	}
	if ssrc := content.Description.SSRC; ssrc != 0 {
		res.Sources = append(res.Sources, domain.Source{Participant: initiator, SSRC: ssrc})
	}
	res.Sources = append(res.Sources, content.Description.Sources...)
	return res, nil
}
