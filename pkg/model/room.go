package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

type ChatRoom struct {
	ID             string     `json:"id"`
	ParticipantIDs []string   `json:"participant_ids"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	UnreadCount    int64      `json:"unread_count"`

	Participants []Profile `json:"participants,omitempty"`
	LastMessage  *Message  `json:"last_message,omitempty"`
}

// HasParticipant reports whether userID belongs to the room.
func (r *ChatRoom) HasParticipant(userID string) bool {
	for _, id := range r.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Others returns the participant ids other than userID.
func (r *ChatRoom) Others(userID string) []string {
	out := make([]string, 0, len(r.ParticipantIDs))
	for _, id := range r.ParticipantIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// NormalizeParticipants trims, de-duplicates and sorts ids.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ParticipantKey is the canonical identity of a room: its participant set,
// order-insensitive. Each id is length-prefixed so ids containing the
// separator cannot collide.
func ParticipantKey(ids []string) string {
	var b strings.Builder
	for _, id := range NormalizeParticipants(ids) {
		b.WriteString(strconv.Itoa(len(id)))
		b.WriteByte(':')
		b.WriteString(id)
	}
	return b.String()
}

// SameParticipants compares two participant lists as sets.
func SameParticipants(a, b []string) bool {
	na, nb := NormalizeParticipants(a), NormalizeParticipants(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

type Profile struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FullName  string  `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
