package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/model"
)

const DefaultBootstrapTimeout = 5 * time.Second

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrNoSession         = apperr.Unauthorized("no signed-in user")
	ErrNoCounterpart     = apperr.InvalidArg("counterpart id is required")
	ErrAlreadyOpen       = apperr.FailedPrecondition("chat session already opened")
	ErrNotReady          = apperr.FailedPrecondition("chat room is not ready")
	ErrClosed            = apperr.FailedPrecondition("chat session is closed")
	ErrEmptyMessage      = apperr.InvalidArg("message is empty")
	ErrInvalidAttachment = apperr.InvalidArg("attachment is not a sendable media item")
	ErrNoMediaSelected   = apperr.FailedPrecondition("no media selected")
	ErrRecordingActive   = apperr.FailedPrecondition("a recording is already in progress")
	ErrNotRecording      = apperr.FailedPrecondition("no recording in progress")
	ErrEntryNotFound     = apperr.NotFound("message not in timeline")
	ErrNotFailed         = apperr.FailedPrecondition("message has not failed")
	ErrNotOwnMessage     = apperr.Forbidden("only the sender can delete a message")
	ErrNotPlayable       = apperr.InvalidArg("message has no playable audio")
	ErrUnsupported       = apperr.FailedPrecondition("feature not configured")
)

type Options struct {
	Session        auth.Session
	CounterpartID  string
	InitialMessage string
	// BootstrapTimeout bounds how long Open waits before reporting
	// StateConnecting. Bootstrap keeps going in the background.
	BootstrapTimeout time.Duration
	// OnChange runs after every visible change, never under the
	// controller's lock.
	OnChange func()
	Now      func() time.Time
	Logger   zerolog.Logger
}

type recState int

const (
	recIdle recState = iota
	recBusy
	recActive
)

// Controller coordinates one open conversation: the room, its timeline,
// optimistic sends, media and voice, and the counterpart's presence.
type Controller struct {
	deps Deps
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	subs   *registry

	mu          sync.Mutex
	state       State
	err         error
	room        *model.ChatRoom
	tl          timeline
	pending     *Attachment
	rec         recState
	playing     EntryID
	counterpart model.Presence
	seedSent    bool

	closeOnce sync.Once
	closeErr  error
}

func New(deps Deps, opts Options) (*Controller, error) {
	if !opts.Session.Valid() {
		return nil, ErrNoSession
	}
	if opts.CounterpartID == "" {
		return nil, ErrNoCounterpart
	}
	if deps.Directory == nil || deps.Pipeline == nil || deps.Realtime == nil {
		return nil, errors.New("session: directory, pipeline and realtime are required")
	}
	if opts.BootstrapTimeout <= 0 {
		opts.BootstrapTimeout = DefaultBootstrapTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:        deps,
		opts:        opts,
		log:         opts.Logger.With().Str("user_id", opts.Session.UserID).Str("counterpart_id", opts.CounterpartID).Logger(),
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		subs:        newRegistry(),
		counterpart: model.Presence{UserID: opts.CounterpartID},
	}, nil
}

// Open resolves the room, loads the first page and subscribes to changes.
// If that takes longer than the bootstrap timeout Open returns nil with the
// controller still in StateConnecting.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateReady:
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = StateConnecting
	c.err = nil
	c.mu.Unlock()
	c.notify()

	done := make(chan error, 1)
	go func() { done <- c.bootstrap() }()

	timer := time.NewTimer(c.opts.BootstrapTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		c.log.Warn().Dur("timeout", c.opts.BootstrapTimeout).Msg("chat bootstrap still running")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) bootstrap() error {
	ctx := c.ctx
	me := c.opts.Session.UserID

	room, err := c.deps.Directory.ResolveOrCreateRoom(ctx, []string{me, c.opts.CounterpartID})
	if err != nil {
		return c.fail(err)
	}
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()

	// Subscribe before loading so nothing sent in between is missed; merge
	// is idempotent.
	sub, err := c.deps.Realtime.SubscribeRoom(ctx, room.ID, c.onMessageEvent)
	if err != nil {
		return c.fail(err)
	}
	if !c.subs.add("room:"+room.ID, sub) {
		return ErrClosed
	}

	msgs, err := c.deps.Pipeline.List(ctx, room.ID)
	if err != nil {
		return c.fail(err)
	}
	c.mu.Lock()
	for _, m := range msgs {
		c.tl.merge(m)
	}
	c.mu.Unlock()

	c.watchCounterpart(ctx, c.deps.Realtime)

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateReady
	seed := c.opts.InitialMessage != "" && !c.seedSent
	c.seedSent = true
	c.mu.Unlock()
	c.notify()

	c.log.Debug().Str("room_id", room.ID).Int("messages", len(msgs)).Msg("chat session ready")

	if seed {
		if _, err := c.SendText(ctx, c.opts.InitialMessage); err != nil {
			c.log.Warn().Err(err).Msg("initial message failed")
		}
	}
	return nil
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateFailed
		c.err = err
	}
	c.mu.Unlock()
	c.log.Warn().Err(err).Msg("chat bootstrap failed")
	c.notify()
	return err
}

// watchCounterpart loads and follows the counterpart's presence. Failures
// leave the indicator offline.
func (c *Controller) watchCounterpart(ctx context.Context, rt Realtime) {
	uid := c.opts.CounterpartID
	if c.deps.Presence != nil {
		if p, err := c.deps.Presence.Get(ctx, uid); err != nil {
			c.log.Warn().Err(err).Msg("load counterpart presence failed")
		} else {
			c.onPresence(p)
		}
	}
	sub, err := rt.SubscribePresence(ctx, uid, c.onPresence)
	if err != nil {
		c.log.Warn().Err(err).Msg("subscribe counterpart presence failed")
		return
	}
	c.subs.add("presence:"+uid, sub)
}

// Reconnect attaches a fresh realtime connection after the previous one
// dropped. It re-subscribes, replacing the dead subscriptions, and reloads
// history so events missed while disconnected are merged in.
func (c *Controller) Reconnect(ctx context.Context, rt Realtime) error {
	c.mu.Lock()
	room, err := c.readyRoom()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	sub, err := rt.SubscribeRoom(c.ctx, room.ID, c.onMessageEvent)
	if err != nil {
		return err
	}
	if !c.subs.add("room:"+room.ID, sub) {
		return ErrClosed
	}
	c.watchCounterpart(c.ctx, rt)
	c.log.Info().Str("room_id", room.ID).Msg("realtime re-established")
	return c.Reload(ctx)
}

// Reload fetches the newest page and merges it into the timeline.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	room, err := c.readyRoom()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	msgs, err := c.deps.Pipeline.List(ctx, room.ID)
	if err != nil {
		return err
	}
	changed := false
	c.mu.Lock()
	for _, m := range msgs {
		if c.tl.merge(m) {
			changed = true
		}
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
	return nil
}

func (c *Controller) onPresence(p model.Presence) {
	if p.UserID != c.opts.CounterpartID {
		return
	}
	c.mu.Lock()
	if c.state == StateClosed || p.UpdatedAt.Before(c.counterpart.UpdatedAt) {
		c.mu.Unlock()
		return
	}
	c.counterpart = p
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) onMessageEvent(ev model.MessageEvent) {
	c.mu.Lock()
	if c.state == StateClosed || c.room == nil || ev.RoomID != c.room.ID {
		c.mu.Unlock()
		return
	}
	changed := false
	switch ev.Type {
	case model.EventInsert, model.EventUpdate, model.EventDelete:
		if ev.Message != nil {
			changed = c.tl.merge(*ev.Message)
		}
	case model.EventRead:
		changed = c.tl.applyRead(c.room, ev.ReaderID, ev.ReadCursor, c.now())
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Controller) notify() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the bootstrap failure, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Room() *model.ChatRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	r := *c.room
	return &r
}

// Messages returns the timeline newest first, optimistic entries on top.
func (c *Controller) Messages() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tl.snapshot()
}

// CounterpartOnline applies the staleness window at call time, so a
// counterpart who stopped heartbeating reads as offline without any event.
func (c *Controller) CounterpartOnline() bool {
	c.mu.Lock()
	p := c.counterpart
	c.mu.Unlock()
	return p.EffectivelyOnline(c.now(), model.DefaultStaleAfter)
}

// Close tears down every subscription and releases the recorder and player.
// It is safe to call more than once and from any state.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		recording := c.rec != recIdle
		playing := !c.playing.IsZero()
		c.rec = recIdle
		c.playing = EntryID{}
		c.pending = nil
		c.mu.Unlock()

		c.cancel()

		errs := []error{c.subs.closeAll()}
		if recording && c.deps.Recorder != nil {
			errs = append(errs, c.deps.Recorder.Cancel())
		}
		if playing && c.deps.Player != nil {
			errs = append(errs, c.deps.Player.Stop())
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// readyRoom returns the room when the controller can send. Callers hold mu.
func (c *Controller) readyRoom() (*model.ChatRoom, error) {
	switch c.state {
	case StateClosed:
		return nil, ErrClosed
	case StateReady:
		return c.room, nil
	}
	return nil, ErrNotReady
}
