package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultHeartbeatInterval = 60 * time.Second

// Writer is the subset of the store a heartbeat loop needs. The API client
// satisfies it too, so the same loop runs in-process or over HTTP.
type Writer interface {
	Heartbeat(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// Heartbeater keeps one user online while a session is active.
type Heartbeater struct {
	w        Writer
	userID   string
	interval time.Duration
	log      zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewHeartbeater(w Writer, userID string, interval time.Duration, logger zerolog.Logger) *Heartbeater {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeater{
		w:        w,
		userID:   userID,
		interval: interval,
		log:      logger.With().Str("component", "heartbeat").Str("user_id", userID).Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start beats once right away, then on every tick, until ctx is cancelled or
// Stop is called. On exit it makes one best-effort offline write.
func (h *Heartbeater) Start(ctx context.Context) {
	go h.run(ctx)
}

func (h *Heartbeater) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ticker.C:
			h.beat(ctx)
		case <-ctx.Done():
			h.offline()
			return
		case <-h.stop:
			h.offline()
			return
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) {
	if err := h.w.Heartbeat(ctx, h.userID); err != nil {
		h.log.Warn().Err(err).Msg("heartbeat failed")
	}
}

func (h *Heartbeater) offline() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.w.SetOffline(ctx, h.userID); err != nil {
		// Staleness takes over once the window passes.
		h.log.Warn().Err(err).Msg("offline write failed")
	}
}

// Stop ends the loop and waits for the offline write. Safe to call more than
// once; must only be called after Start.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// StoreWriter adapts a Store to Writer.
type StoreWriter struct{ *Store }

func (w StoreWriter) Heartbeat(ctx context.Context, userID string) error {
	_, err := w.Store.Heartbeat(ctx, userID)
	return err
}
