package session

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dkeye/Recorder/internal/domain"
	"github.com/pion/sdp/v3"
)

// SessionDescription renders the negotiated media as SDP for the recorder
// that consumes the streams.
func (i *SessionInfo) SessionDescription() *sdp.SessionDescription {
	snap := i.Snapshot()
	now := uint64(time.Now().Unix())

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: sdp.SessionName(snap.Conference),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{}}},
	}

	for _, kind := range domain.MediaKinds {
		mi, ok := snap.Media[kind]
		if !ok || mi.Format.Name == "" {
			continue
		}
		desc.MediaDescriptions = append(desc.MediaDescriptions, mediaDescription(kind, mi))
	}
	return desc
}

// SDP marshals SessionDescription.
func (i *SessionInfo) SDP() ([]byte, error) {
	return i.SessionDescription().Marshal()
}

func mediaDescription(kind domain.MediaKind, mi MediaInfo) *sdp.MediaDescription {
	pt := strconv.Itoa(int(mi.PayloadID))
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   string(kind),
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{pt},
		},
	}

	rtpmap := fmt.Sprintf("%s %s/%d", pt, mi.Format.Name, mi.Format.ClockRate)
	if mi.Format.Channels > 1 {
		rtpmap += "/" + strconv.Itoa(int(mi.Format.Channels))
	}
	md.Attributes = append(md.Attributes,
		sdp.NewPropertyAttribute("recvonly"),
		sdp.NewAttribute("rtpmap", rtpmap),
	)
	if fmtp := fmtpLine(mi.PayloadType.Parameters); fmtp != "" {
		md.Attributes = append(md.Attributes, sdp.NewAttribute("fmtp", pt+" "+fmtp))
	}
	if fp := mi.RemoteFingerprint; fp != nil {
		md.Attributes = append(md.Attributes, sdp.NewAttribute("fingerprint", fp.Hash+" "+fp.Value))
	}

	// Stable order so exports diff cleanly.
	participants := make([]domain.ParticipantID, 0, len(mi.SSRCs))
	for p := range mi.SSRCs {
		participants = append(participants, p)
	}
	slices.Sort(participants)
	for _, p := range participants {
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute("ssrc", fmt.Sprintf("%d cname:%s", mi.SSRCs[p], p)))
	}
	return md
}

func fmtpLine(params []domain.Parameter) string {
	var line string
	for i, p := range params {
		if i > 0 {
			line += ";"
		}
		line += p.Name + "=" + p.Value
	}
	return line
}
