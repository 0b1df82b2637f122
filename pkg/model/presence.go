package model

import "time"

// DefaultStaleAfter bounds how long a heartbeat keeps a user online when no
// explicit offline write arrives.
const DefaultStaleAfter = 2 * time.Minute

type Presence struct {
	UserID    string    `json:"user_id"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectivelyOnline combines the stored flag with the staleness window.
func (p Presence) EffectivelyOnline(now time.Time, staleAfter time.Duration) bool {
	if !p.IsOnline || p.LastSeen.IsZero() {
		return false
	}
	return now.Sub(p.LastSeen) < staleAfter
}
