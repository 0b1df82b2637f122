package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// Subscription is a live feed. Close releases it and is safe to repeat.
type Subscription interface {
	Close() error
}

type Directory interface {
	ResolveOrCreateRoom(ctx context.Context, participantIDs []string) (*model.ChatRoom, error)
}

type Pipeline interface {
	Send(ctx context.Context, req model.SendRequest) (*model.Message, error)
	List(ctx context.Context, roomID string) ([]model.Message, error)
	MarkRead(ctx context.Context, roomID, userID string) error
	SoftDelete(ctx context.Context, messageID snowflake.ID, actorID string) (*model.Message, error)
}

type Uploader interface {
	Upload(ctx context.Context, category media.Category, filename, contentType string, r io.Reader) (string, error)
}

// Realtime delivers room and presence changes. Callbacks may run on any
// goroutine and in any order relative to in-flight calls.
type Realtime interface {
	SubscribeRoom(ctx context.Context, roomID string, fn func(model.MessageEvent)) (Subscription, error)
	SubscribePresence(ctx context.Context, userID string, fn func(model.Presence)) (Subscription, error)
}

type PresenceReader interface {
	Get(ctx context.Context, userID string) (model.Presence, error)
}

// Recorder captures one voice clip at a time.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (Attachment, error)
	Cancel() error
}

type Player interface {
	Play(ctx context.Context, uri string) error
	Stop() error
}

// Deps are the collaborators of a Controller. Uploader, Presence, Recorder
// and Player are optional; the features needing them report
// ErrUnsupported when absent.
type Deps struct {
	Directory Directory
	Pipeline  Pipeline
	Uploader  Uploader
	Realtime  Realtime
	Presence  PresenceReader
	Recorder  Recorder
	Player    Player
}

// Attachment is a local media payload waiting to be uploaded and sent.
type Attachment struct {
	Type        model.MessageType
	Filename    string
	ContentType string
	Duration    time.Duration
	Open        func() (io.ReadCloser, error)
}

func FileAttachment(path string, t model.MessageType, contentType string) Attachment {
	return Attachment{
		Type:        t,
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

func BytesAttachment(filename, contentType string, t model.MessageType, data []byte) Attachment {
	return Attachment{
		Type:        t,
		Filename:    filename,
		ContentType: contentType,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func (a Attachment) durationSeconds() *int {
	if a.Duration <= 0 {
		return nil
	}
	return model.IntPtr(int(a.Duration.Round(time.Second) / time.Second))
}
