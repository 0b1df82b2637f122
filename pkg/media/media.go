package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/metrics"
	"github.com/rindah89/barter/pkg/model"
)

type Category string

const (
	CategoryImages Category = "chatImages"
	CategoryVideos Category = "chatVideos"
	CategoryFiles  Category = "chatFiles"
	CategoryVoice  Category = "voiceMessages"
)

const DefaultMaxBytes int64 = 50 << 20

var (
	ErrUnknownCategory = apperr.InvalidArg("unknown media category")
	ErrEmptyFile       = apperr.InvalidArg("file is empty")
	ErrTooLarge        = apperr.InvalidArg("file exceeds upload limit")
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryImages, CategoryVideos, CategoryFiles, CategoryVoice:
		return c, nil
	}
	return "", ErrUnknownCategory
}

// CategoryFor maps a media message type to its upload bucket.
func CategoryFor(t model.MessageType) (Category, bool) {
	switch t {
	case model.TypeImage, model.TypeGIF:
		return CategoryImages, true
	case model.TypeVideo:
		return CategoryVideos, true
	case model.TypeVoice:
		return CategoryVoice, true
	case model.TypeFile:
		return CategoryFiles, true
	}
	return "", false
}

type Status string

const (
	StatusUploading Status = "uploading"
	StatusUploaded  Status = "uploaded"
	StatusFailed    Status = "failed"
)

// Asset describes one upload as it moves through its states.
type Asset struct {
	Key      string
	Category Category
	Status   Status
	URL      string
	Err      error
}

// Store persists an object under key and returns its durable URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

type Gateway struct {
	store    Store
	maxBytes int64
	log      zerolog.Logger
}

type Option func(*Gateway)

func WithMaxBytes(n int64) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxBytes = n
		}
	}
}

func NewGateway(store Store, logger zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		maxBytes: DefaultMaxBytes,
		log:      logger.With().Str("component", "media").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Upload stores r as {category}/{ulid}{ext} and returns its URL.
func (g *Gateway) Upload(ctx context.Context, category Category, filename, contentType string, r io.Reader) (string, error) {
	asset := g.upload(ctx, category, filename, contentType, r)
	if asset.Err != nil {
		return "", asset.Err
	}
	return asset.URL, nil
}

// File is one attachment of a multi-file upload.
type File struct {
	Category    Category
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

const maxParallelUploads = 4

// UploadAll uploads files concurrently and returns one Asset per file, in
// order. A failed file never affects its siblings.
func (g *Gateway) UploadAll(ctx context.Context, files []File) []Asset {
	out := make([]Asset, len(files))
	var eg errgroup.Group
	eg.SetLimit(maxParallelUploads)
	for i, f := range files {
		i, f := i, f
		eg.Go(func() error {
			rc, err := f.Open()
			if err != nil {
				out[i] = Asset{Category: f.Category, Status: StatusFailed, Err: fmt.Errorf("open %s: %w", f.Filename, err)}
				return nil
			}
			defer rc.Close()
			out[i] = g.upload(ctx, f.Category, f.Filename, f.ContentType, rc)
			return nil
		})
	}
	eg.Wait()
	return out
}

func (g *Gateway) upload(ctx context.Context, category Category, filename, contentType string, r io.Reader) Asset {
	if _, err := ParseCategory(string(category)); err != nil {
		return Asset{Category: category, Status: StatusFailed, Err: err}
	}
	asset := Asset{Key: ObjectKey(category, filename, contentType), Category: category}
	g.transition(&asset, StatusUploading)

	body := &limitedReader{r: r, remaining: g.maxBytes}
	url, err := g.store.Put(ctx, asset.Key, contentType, body)
	switch {
	case err == nil && body.read == 0:
		err = ErrEmptyFile
	case errors.Is(err, ErrTooLarge) || body.exceeded:
		err = ErrTooLarge
	case err != nil:
		err = apperr.Unavailable("media upload failed", err)
	}
	if err != nil {
		asset.Err = err
		g.transition(&asset, StatusFailed)
		g.log.Warn().Err(err).Str("key", asset.Key).Msg("upload failed")
		return asset
	}

	asset.URL = url
	g.transition(&asset, StatusUploaded)
	g.log.Debug().Str("key", asset.Key).Str("url", url).Msg("upload stored")
	return asset
}

func (g *Gateway) transition(a *Asset, s Status) {
	a.Status = s
	if s != StatusUploading {
		metrics.Uploads.WithLabelValues(string(a.Category), string(s)).Inc()
	}
}

// ObjectKey names a new object. The extension comes from the filename, or
// from the content type when the filename has none.
func ObjectKey(category Category, filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" && contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return string(category) + "/" + ulid.Make().String() + ext
}

type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var extra [1]byte
		if n, _ := l.r.Read(extra[:]); n > 0 {
			l.exceeded = true
			return 0, ErrTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	l.read += int64(n)
	return n, err
}
