package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ronalking182/errandpay/internal/models"
)

// SessionRepository handles checkout session database operations.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert writes the session row, creating it on first sight.
func (r *SessionRepository) Upsert(session *models.CheckoutSession) error {
	return r.db.Save(session).Error
}

// FindByID returns a session by its ID.
func (r *SessionRepository) FindByID(id string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.Where("id = ?", id).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByReference returns the session that owns a gateway reference.
func (r *SessionRepository) FindByReference(reference string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.Where("reference = ?", reference).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindStaleAwaiting returns sessions stuck in awaiting_completion that have
// not been touched since the cutoff. These are candidates for offline
// reconciliation after a restart.
func (r *SessionRepository) FindStaleAwaiting(cutoff time.Time, limit int) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	err := r.db.
		Where("state = ? AND updated_at < ?", "awaiting_completion", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// Update applies field updates to a session row.
func (r *SessionRepository) Update(id string, updates map[string]interface{}) error {
	return r.db.Model(&models.CheckoutSession{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteAbandonedBefore removes idle/initializing rows older than the cutoff.
func (r *SessionRepository) DeleteAbandonedBefore(cutoff time.Time) (int64, error) {
	res := r.db.
		Where("state IN ? AND updated_at < ?", []string{"idle", "initializing"}, cutoff).
		Delete(&models.CheckoutSession{})
	return res.RowsAffected, res.Error
}
