package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/model"
)

// SendText sends a text message optimistically. The returned id is the
// server id on success and the local id when the entry failed.
func (c *Controller) SendText(ctx context.Context, text string) (EntryID, error) {
	if strings.TrimSpace(text) == "" {
		return EntryID{}, ErrEmptyMessage
	}
	ref, err := c.addLocal(model.Message{MessageType: model.TypeText, Content: model.StringPtr(text)}, nil)
	if err != nil {
		return EntryID{}, err
	}
	return c.deliver(ctx, ref)
}

// SelectMedia fills the pending attachment slot, replacing any previous
// selection.
func (c *Controller) SelectMedia(att Attachment) error {
	if !att.Type.IsMedia() || att.Open == nil {
		return ErrInvalidAttachment
	}
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending = &att
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) ClearMedia() {
	c.mu.Lock()
	had := c.pending != nil
	c.pending = nil
	c.mu.Unlock()
	if had {
		c.notify()
	}
}

func (c *Controller) PendingMedia() (Attachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Attachment{}, false
	}
	return *c.pending, true
}

// SendSelectedMedia uploads the pending attachment and sends it with an
// optional caption. The slot is emptied whether or not the send succeeds;
// a failure stays on the timeline for Retry.
func (c *Controller) SendSelectedMedia(ctx context.Context, caption string) (EntryID, error) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return EntryID{}, ErrNoMediaSelected
	}
	if _, err := c.readyRoom(); err != nil {
		c.mu.Unlock()
		return EntryID{}, err
	}
	att := *c.pending
	c.pending = nil
	c.mu.Unlock()

	return c.sendAttachment(ctx, att, caption)
}

// SendVoice sends a clip produced by StopRecording.
func (c *Controller) SendVoice(ctx context.Context, clip Attachment) (EntryID, error) {
	clip.Type = model.TypeVoice
	if clip.Open == nil {
		return EntryID{}, ErrInvalidAttachment
	}
	return c.sendAttachment(ctx, clip, "")
}

func (c *Controller) sendAttachment(ctx context.Context, att Attachment, caption string) (EntryID, error) {
	if c.deps.Uploader == nil {
		return EntryID{}, ErrUnsupported
	}
	msg := model.Message{MessageType: att.Type, Duration: att.durationSeconds()}
	if strings.TrimSpace(caption) != "" {
		msg.Content = model.StringPtr(caption)
	}
	ref, err := c.addLocal(msg, &att)
	if err != nil {
		return EntryID{}, err
	}
	return c.deliver(ctx, ref)
}

func (c *Controller) addLocal(msg model.Message, att *Attachment) (string, error) {
	c.mu.Lock()
	room, err := c.readyRoom()
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	ref := uuid.NewString()
	now := c.now()
	msg.ChatRoomID = room.ID
	msg.SenderID = c.opts.Session.UserID
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.Metadata = map[string]any{model.MetadataClientRef: ref}

	e := &Entry{ID: LocalID(ref), Message: msg, State: EntrySending, attachment: att}
	if att != nil {
		e.Upload = media.StatusUploading
	}
	c.tl.addLocal(e)
	c.mu.Unlock()
	c.notify()
	return ref, nil
}

// deliver uploads the entry's attachment if it has none stored yet, then
// sends it. The pipeline is always called without holding mu because
// realtime echoes may arrive on the calling goroutine.
func (c *Controller) deliver(ctx context.Context, ref string) (EntryID, error) {
	c.mu.Lock()
	_, e := c.tl.findLocal(ref)
	if e == nil {
		c.mu.Unlock()
		return EntryID{}, ErrEntryNotFound
	}
	msg := e.Message
	att := e.attachment
	c.mu.Unlock()

	if att != nil && msg.MediaURI == nil {
		url, err := c.upload(ctx, *att)
		if err != nil {
			c.markFailed(ref, err, media.StatusFailed)
			return LocalID(ref), err
		}
		msg.MediaURI = &url
		c.mu.Lock()
		if _, e := c.tl.findLocal(ref); e != nil {
			e.Message.MediaURI = &url
			e.Upload = media.StatusUploaded
		}
		c.mu.Unlock()
		c.notify()
	}

	sent, err := c.deps.Pipeline.Send(ctx, model.SendRequest{
		RoomID:    msg.ChatRoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		MediaURI:  msg.MediaURI,
		Type:      msg.MessageType,
		Duration:  msg.Duration,
		TradeID:   msg.TradeID,
		ClientRef: ref,
	})
	if err != nil {
		c.markFailed(ref, err, "")
		return LocalID(ref), err
	}

	c.mu.Lock()
	c.tl.removeLocal(ref)
	c.tl.merge(*sent)
	c.mu.Unlock()
	c.notify()
	return ServerID(sent.ID), nil
}

func (c *Controller) upload(ctx context.Context, att Attachment) (string, error) {
	category, ok := media.CategoryFor(att.Type)
	if !ok {
		return "", ErrInvalidAttachment
	}
	rc, err := att.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return c.deps.Uploader.Upload(ctx, category, att.Filename, att.ContentType, rc)
}

func (c *Controller) markFailed(ref string, err error, upload media.Status) {
	c.mu.Lock()
	if _, e := c.tl.findLocal(ref); e != nil {
		e.State = EntryFailed
		e.Err = err
		if upload != "" {
			e.Upload = upload
		}
	}
	c.mu.Unlock()
	c.log.Warn().Err(err).Str("client_ref", ref).Msg("send failed")
	c.notify()
}

// Retry resends a failed entry under the same local reference, uploading
// again only if the previous upload never completed.
func (c *Controller) Retry(ctx context.Context, id EntryID) (EntryID, error) {
	if !id.IsLocal() {
		return id, ErrNotFailed
	}
	c.mu.Lock()
	if _, err := c.readyRoom(); err != nil {
		c.mu.Unlock()
		return id, err
	}
	_, e := c.tl.findLocal(id.Local())
	switch {
	case e == nil:
		c.mu.Unlock()
		return id, ErrEntryNotFound
	case e.State != EntryFailed:
		c.mu.Unlock()
		return id, ErrNotFailed
	}
	e.State = EntrySending
	e.Err = nil
	if e.attachment != nil && e.Message.MediaURI == nil {
		e.Upload = media.StatusUploading
	}
	c.mu.Unlock()
	c.notify()

	return c.deliver(ctx, id.Local())
}

// Discard drops a failed optimistic entry.
func (c *Controller) Discard(id EntryID) error {
	if !id.IsLocal() {
		return ErrNotFailed
	}
	c.mu.Lock()
	_, e := c.tl.findLocal(id.Local())
	switch {
	case e == nil:
		c.mu.Unlock()
		return ErrEntryNotFound
	case e.State != EntryFailed:
		c.mu.Unlock()
		return ErrNotFailed
	}
	c.tl.removeLocal(id.Local())
	c.mu.Unlock()
	c.notify()
	return nil
}

// Delete soft-deletes one of the user's stored messages. Failed local
// entries are discarded instead.
func (c *Controller) Delete(ctx context.Context, id EntryID) error {
	if id.IsLocal() {
		return c.Discard(id)
	}
	me := c.opts.Session.UserID

	c.mu.Lock()
	if _, err := c.readyRoom(); err != nil {
		c.mu.Unlock()
		return err
	}
	_, e := c.tl.findServer(id.Server())
	if e == nil {
		c.mu.Unlock()
		return ErrEntryNotFound
	}
	if e.Message.SenderID != me {
		c.mu.Unlock()
		return ErrNotOwnMessage
	}
	c.mu.Unlock()

	tomb, err := c.deps.Pipeline.SoftDelete(ctx, id.Server(), me)
	if err != nil {
		return err
	}
	c.mu.Lock()
	changed := c.tl.merge(*tomb)
	c.mu.Unlock()
	if changed {
		c.notify()
	}
	return nil
}

// MarkRead advances the user's read cursor to the newest message.
func (c *Controller) MarkRead(ctx context.Context) error {
	c.mu.Lock()
	room, err := c.readyRoom()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.deps.Pipeline.MarkRead(ctx, room.ID, c.opts.Session.UserID)
}
