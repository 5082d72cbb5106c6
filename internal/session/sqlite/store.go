package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	checkoutDatamodel "github.com/frahmantamala/vip-checkout/internal/core/datamodel/checkout"
	"github.com/frahmantamala/vip-checkout/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStore keeps one session row per checkout profile.
type SessionStore struct {
	db        *gorm.DB
	profileID string
	logger    *slog.Logger
}

func NewSessionStore(db *gorm.DB, profileID string, logger *slog.Logger) session.Store {
	return &SessionStore{db: db, profileID: profileID, logger: logger}
}

func (r *SessionStore) Save(ctx context.Context, s session.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	row := checkoutDatamodel.PaymentSession{
		ProfileID: r.profileID,
		Payload:   string(payload),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SessionStore) Load(ctx context.Context) (*session.Session, error) {
	var row checkoutDatamodel.PaymentSession
	err := r.db.WithContext(ctx).Where("profile_id = ?", r.profileID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal([]byte(row.Payload), &s); err != nil {
		r.discard(ctx, "unparseable session record", err)
		return nil, nil
	}
	if err := s.Validate(); err != nil {
		r.discard(ctx, "invalid session record", err)
		return nil, nil
	}
	return &s, nil
}

func (r *SessionStore) Clear(ctx context.Context) error {
	err := r.db.WithContext(ctx).
		Where("profile_id = ?", r.profileID).
		Delete(&checkoutDatamodel.PaymentSession{}).Error
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (r *SessionStore) discard(ctx context.Context, reason string, cause error) {
	r.logger.Warn(reason, "profile_id", r.profileID, "error", cause)
	if err := r.Clear(ctx); err != nil {
		r.logger.Error("failed to discard session record", "profile_id", r.profileID, "error", err)
	}
}
