package session

import (
	"sort"
	"time"

	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// EntryID identifies a timeline entry: either the local reference of an
// optimistic send or the server id of a stored message.
type EntryID struct {
	local  string
	server snowflake.ID
}

func LocalID(ref string) EntryID        { return EntryID{local: ref} }
func ServerID(id snowflake.ID) EntryID { return EntryID{server: id} }

func (e EntryID) IsLocal() bool        { return e.local != "" }
func (e EntryID) IsZero() bool         { return e.local == "" && e.server == 0 }
func (e EntryID) Local() string        { return e.local }
func (e EntryID) Server() snowflake.ID { return e.server }

func (e EntryID) String() string {
	if e.local != "" {
		return "local:" + e.local
	}
	return e.server.String()
}

type EntryState string

const (
	EntrySending EntryState = "sending"
	EntrySent    EntryState = "sent"
	EntryFailed  EntryState = "failed"
)

// Entry is one row of the conversation as the user sees it.
type Entry struct {
	ID      EntryID
	Message model.Message
	State   EntryState
	// Upload is set for media entries only.
	Upload media.Status
	Err    error

	attachment *Attachment
}

// timeline keeps optimistic entries above server messages. Both halves are
// newest first.
type timeline struct {
	local  []*Entry
	server []*Entry
}

func (t *timeline) addLocal(e *Entry) {
	t.local = append([]*Entry{e}, t.local...)
}

func (t *timeline) findLocal(ref string) (int, *Entry) {
	for i, e := range t.local {
		if e.ID.local == ref {
			return i, e
		}
	}
	return -1, nil
}

func (t *timeline) findServer(id snowflake.ID) (int, *Entry) {
	for i, e := range t.server {
		if e.ID.server == id {
			return i, e
		}
	}
	return -1, nil
}

func (t *timeline) find(id EntryID) *Entry {
	if id.IsLocal() {
		_, e := t.findLocal(id.local)
		return e
	}
	_, e := t.findServer(id.server)
	return e
}

func (t *timeline) removeLocal(ref string) bool {
	i, _ := t.findLocal(ref)
	if i < 0 {
		return false
	}
	t.local = append(t.local[:i], t.local[i+1:]...)
	return true
}

// merge applies a server copy of a message. An optimistic entry with the
// same client ref is replaced. A message already present is updated in place
// unless the incoming copy is older; a tombstone is never revived.
func (t *timeline) merge(msg model.Message) bool {
	changed := t.removeLocal(msg.ClientRef())

	if _, e := t.findServer(msg.ID); e != nil {
		cur := e.Message
		if msg.UpdatedAt.Before(cur.UpdatedAt) || (cur.IsDeleted && !msg.IsDeleted) {
			return changed
		}
		if msg.Sender == nil {
			msg.Sender = cur.Sender
		}
		if msg.ReadBy == nil {
			msg.ReadBy = cur.ReadBy
		}
		msg.ReadByAll = msg.ReadByAll || cur.ReadByAll
		e.Message = msg
		return true
	}

	e := &Entry{ID: ServerID(msg.ID), Message: msg, State: EntrySent}
	i := sort.Search(len(t.server), func(i int) bool {
		return model.Newer(&msg, &t.server[i].Message)
	})
	t.server = append(t.server, nil)
	copy(t.server[i+1:], t.server[i:])
	t.server[i] = e
	return true
}

// applyRead records that reader has read everything up to cursor.
func (t *timeline) applyRead(room *model.ChatRoom, reader string, cursor snowflake.ID, at time.Time) bool {
	changed := false
	for _, e := range t.server {
		m := &e.Message
		if m.ID > cursor || m.SenderID == reader || hasReceipt(m, reader) {
			continue
		}
		m.ReadBy = append(m.ReadBy, model.ReadReceipt{MessageID: m.ID, UserID: reader, IsRead: true, ReadAt: at})
		m.ReadByAll = readByAll(m, room)
		changed = true
	}
	return changed
}

func hasReceipt(m *model.Message, userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func readByAll(m *model.Message, room *model.ChatRoom) bool {
	for _, uid := range room.Others(m.SenderID) {
		if !hasReceipt(m, uid) {
			return false
		}
	}
	return true
}

func (t *timeline) snapshot() []Entry {
	out := make([]Entry, 0, len(t.local)+len(t.server))
	for _, e := range t.local {
		out = append(out, *e)
	}
	for _, e := range t.server {
		out = append(out, *e)
	}
	return out
}
