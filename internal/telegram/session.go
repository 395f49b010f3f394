package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/chanscope/internal/models"
)

// SessionStorage keeps the MTProto session in the tg_sessions table.
// It implements session.Storage.
type SessionStorage struct {
	db   *gorm.DB
	name string
}

var _ session.Storage = (*SessionStorage)(nil)

// NewSessionStorage creates a storage for the named session row.
func NewSessionStorage(db *gorm.DB, name string) *SessionStorage {
	return &SessionStorage{db: db, name: name}
}

// LoadSession returns the stored session or session.ErrNotFound.
func (s *SessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	var rows []models.TGSession
	if err := s.db.WithContext(ctx).Where("name = ?", s.name).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(rows) == 0 || len(rows[0].Data) == 0 {
		return nil, session.ErrNotFound
	}
	return rows[0].Data, nil
}

// StoreSession upserts the session blob.
func (s *SessionStorage) StoreSession(ctx context.Context, data []byte) error {
	row := models.TGSession{Name: s.name, Data: data, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Exists reports whether a non-empty session is stored.
func (s *SessionStorage) Exists(ctx context.Context) (bool, error) {
	_, err := s.LoadSession(ctx)
	if err == session.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}
