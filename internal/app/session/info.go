package session

import (
	"maps"
	"sync"

	"github.com/dkeye/Recorder/internal/domain"
)

// MediaInfo is the negotiated state of one media kind.
type MediaInfo struct {
	Format            domain.Format                   `json:"format"`
	PayloadID         uint8                           `json:"payload_id"`
	PayloadType       domain.PayloadType              `json:"payload_type"`
	SSRCs             map[domain.ParticipantID]uint32 `json:"ssrcs"`
	RemoteFingerprint *domain.Fingerprint             `json:"remote_fingerprint,omitempty"`
}

// Info is a point-in-time copy of SessionInfo, safe to hand to API callers.
type Info struct {
	Conference domain.ConferenceID            `json:"conference"`
	RoomJID    domain.ParticipantID           `json:"room_jid"`
	LocalID    domain.ParticipantID           `json:"local_id,omitempty"`
	RemoteID   domain.ParticipantID           `json:"remote_id,omitempty"`
	SID        string                         `json:"sid,omitempty"`
	State      State                          `json:"state"`
	Media      map[domain.MediaKind]MediaInfo `json:"media,omitempty"`
}

// SessionInfo holds what a session has negotiated so far. Mutated only by
// its Session; read by anyone.
type SessionInfo struct {
	mu       sync.RWMutex
	conf     domain.ConferenceID
	roomJID  domain.ParticipantID
	localID  domain.ParticipantID
	remoteID domain.ParticipantID
	sid      string
	state    State
	media    map[domain.MediaKind]*MediaInfo
}

func newSessionInfo(conf domain.ConferenceID, roomJID domain.ParticipantID) *SessionInfo {
	return &SessionInfo{
		conf:    conf,
		roomJID: roomJID,
		state:   StateInit,
		media:   make(map[domain.MediaKind]*MediaInfo),
	}
}

func (i *SessionInfo) Conference() domain.ConferenceID { return i.conf }

func (i *SessionInfo) RoomJID() domain.ParticipantID { return i.roomJID }

func (i *SessionInfo) LocalID() domain.ParticipantID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.localID
}

func (i *SessionInfo) RemoteID() domain.ParticipantID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.remoteID
}

func (i *SessionInfo) SID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sid
}

func (i *SessionInfo) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

func (i *SessionInfo) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

func (i *SessionInfo) setLocalID(id domain.ParticipantID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.localID = id
}

func (i *SessionInfo) setNegotiation(local, remote domain.ParticipantID, sid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if local != "" {
		i.localID = local
	}
	i.remoteID = remote
	i.sid = sid
}

func (i *SessionInfo) mediaLocked(kind domain.MediaKind) *MediaInfo {
	mi, ok := i.media[kind]
	if !ok {
		mi = &MediaInfo{SSRCs: make(map[domain.ParticipantID]uint32)}
		i.media[kind] = mi
	}
	return mi
}

func (i *SessionInfo) setFormat(kind domain.MediaKind, f domain.Format, pt domain.PayloadType) {
	i.mu.Lock()
	defer i.mu.Unlock()
	mi := i.mediaLocked(kind)
	mi.Format = f
	mi.PayloadID = pt.ID
	mi.PayloadType = pt
}

func (i *SessionInfo) setRemoteFingerprint(kind domain.MediaKind, fp *domain.Fingerprint) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.mediaLocked(kind).RemoteFingerprint = fp
}

// addRemoteSSRC records ssrc for participant unless one is already bound.
// It reports whether the binding was stored.
func (i *SessionInfo) addRemoteSSRC(kind domain.MediaKind, participant domain.ParticipantID, ssrc uint32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	mi := i.mediaLocked(kind)
	if _, ok := mi.SSRCs[participant]; ok {
		return false
	}
	mi.SSRCs[participant] = ssrc
	return true
}

// Media returns a copy of kind's negotiated state.
func (i *SessionInfo) Media(kind domain.MediaKind) (MediaInfo, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	mi, ok := i.media[kind]
	if !ok {
		return MediaInfo{}, false
	}
	return copyMedia(mi), true
}

func (i *SessionInfo) RemoteSSRCs(kind domain.MediaKind) map[domain.ParticipantID]uint32 {
	mi, _ := i.Media(kind)
	return mi.SSRCs
}

func (i *SessionInfo) Snapshot() Info {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := Info{
		Conference: i.conf,
		RoomJID:    i.roomJID,
		LocalID:    i.localID,
		RemoteID:   i.remoteID,
		SID:        i.sid,
		State:      i.state,
		Media:      make(map[domain.MediaKind]MediaInfo, len(i.media)),
	}
	for k, mi := range i.media {
		out.Media[k] = copyMedia(mi)
	}
	return out
}

func copyMedia(mi *MediaInfo) MediaInfo {
	out := *mi
	out.SSRCs = maps.Clone(mi.SSRCs)
	return out
}
