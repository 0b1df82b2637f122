package session

import (
	"context"

	"github.com/rindah89/barter/pkg/model"
)

// StartRecording begins a voice clip. Only one recording may be active.
func (c *Controller) StartRecording(ctx context.Context) error {
	if c.deps.Recorder == nil {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.rec != recIdle {
		c.mu.Unlock()
		return ErrRecordingActive
	}
	c.rec = recBusy
	c.mu.Unlock()

	if err := c.deps.Recorder.Start(ctx); err != nil {
		c.setRec(recBusy, recIdle)
		return err
	}
	if !c.setRec(recBusy, recActive) {
		// Closed while starting; Close already cancelled the recorder.
		return ErrClosed
	}
	c.notify()
	return nil
}

// StopRecording finishes the clip and returns it ready for SendVoice.
func (c *Controller) StopRecording(ctx context.Context) (Attachment, error) {
	if !c.setRec(recActive, recBusy) {
		return Attachment{}, ErrNotRecording
	}
	clip, err := c.deps.Recorder.Stop(ctx)
	c.setRec(recBusy, recIdle)
	c.notify()
	if err != nil {
		return Attachment{}, err
	}
	clip.Type = model.TypeVoice
	return clip, nil
}

// CancelRecording discards the clip in progress.
func (c *Controller) CancelRecording() error {
	if !c.setRec(recActive, recBusy) {
		return ErrNotRecording
	}
	err := c.deps.Recorder.Cancel()
	c.setRec(recBusy, recIdle)
	c.notify()
	return err
}

func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec == recActive
}

func (c *Controller) setRec(from, to recState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != from {
		return false
	}
	c.rec = to
	return true
}

// PlayVoice plays a voice message, stopping whatever was playing.
func (c *Controller) PlayVoice(ctx context.Context, id EntryID) error {
	if c.deps.Player == nil {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	e := c.tl.find(id)
	if e == nil {
		c.mu.Unlock()
		return ErrEntryNotFound
	}
	if e.Message.MessageType != model.TypeVoice || e.Message.MediaURI == nil {
		c.mu.Unlock()
		return ErrNotPlayable
	}
	uri := *e.Message.MediaURI
	prev := c.playing
	c.playing = id
	c.mu.Unlock()

	if !prev.IsZero() {
		if err := c.deps.Player.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("stop previous playback failed")
		}
	}
	if err := c.deps.Player.Play(ctx, uri); err != nil {
		c.mu.Lock()
		if c.playing == id {
			c.playing = EntryID{}
		}
		c.mu.Unlock()
		return err
	}
	c.notify()
	return nil
}

func (c *Controller) StopPlayback() error {
	c.mu.Lock()
	if c.playing.IsZero() {
		c.mu.Unlock()
		return nil
	}
	c.playing = EntryID{}
	c.mu.Unlock()
	err := c.deps.Player.Stop()
	c.notify()
	return err
}

func (c *Controller) Playing() EntryID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}
