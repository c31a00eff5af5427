// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxConferenceIDLen = 64

var (
	ErrConferenceIDEmpty   = errors.New("conference id empty")
	ErrConferenceIDTooLong = errors.New("conference id too long")
)

// ConferenceID names a conference room; the registry keys sessions by it.
type ConferenceID string

func NewConferenceID(raw string) (ConferenceID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrConferenceIDEmpty
	}
	if len(raw) > MaxConferenceIDLen {
		return "", ErrConferenceIDTooLong
	}
	return ConferenceID(raw), nil
}

// RoomJID returns the multi-user room address for the conference on domain.
func (c ConferenceID) RoomJID(domain string) ParticipantID {
	return ParticipantID(string(c) + "@" + domain)
}

// ParticipantID is a JID-shaped identity: node@domain/resource.
type ParticipantID string

func (p ParticipantID) Node() string {
	s := string(p)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return ""
}

func (p ParticipantID) Domain() string {
	s := string(p)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

func (p ParticipantID) Resource() string {
	s := string(p)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// Bare strips the resource part.
func (p ParticipantID) Bare() ParticipantID {
	s := string(p)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return ParticipantID(s[:i])
	}
	return p
}
