package profile

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/model"
)

var ErrProfileNotFound = apperr.NotFound("profile not found")

type Profile struct {
	ID        string `gorm:"primaryKey;size:64"`
	Username  string `gorm:"size:64;index"`
	FullName  string `gorm:"size:128"`
	AvatarURL *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Profile) toModel() model.Profile {
	return model.Profile{ID: p.ID, Username: p.Username, FullName: p.FullName, AvatarURL: p.AvatarURL}
}

type Config struct {
	// DSN is a postgres:// URL or a SQLite path ("file::memory:" in tests).
	DSN    string
	LogSQL bool
}

// Open connects to Postgres or SQLite depending on the DSN and migrates the
// profile table.
func Open(cfg Config, zl zerolog.Logger) (*gorm.DB, error) {
	lvl := logger.Silent
	if cfg.LogSQL {
		lvl = logger.Info
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		dialector = postgres.Open(cfg.DSN)
	} else {
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.New(zl, "", 0), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  lvl,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		return nil, err
	}
	return db, nil
}

// Store is the participant profile directory.
type Store struct{ db *gorm.DB }

var _ chat.ProfileLookup = (*Store)(nil)

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Upsert creates the profile or overwrites its display fields.
func (s *Store) Upsert(ctx context.Context, p model.Profile) error {
	if p.ID == "" {
		return apperr.InvalidArg("profile id is required")
	}
	rec := Profile{ID: p.ID, Username: p.Username, FullName: p.FullName, AvatarURL: p.AvatarURL}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "full_name", "avatar_url", "updated_at"}),
	}).Create(&rec).Error
}

// EnsureExists creates a bare profile for a user seen for the first time.
func (s *Store) EnsureExists(ctx context.Context, userID string) error {
	rec := Profile{ID: userID, Username: userID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

func (s *Store) Get(ctx context.Context, id string) (model.Profile, error) {
	var rec Profile
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Profile{}, ErrProfileNotFound
		}
		return model.Profile{}, err
	}
	return rec.toModel(), nil
}

// Profiles returns the known profiles among ids. Unknown ids are absent from
// the result.
func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recs []Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, err
	}
	for _, r := range recs {
		out[r.ID] = r.toModel()
	}
	return out, nil
}
