package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ronalking182/errandpay/internal/models"
)

// PaymentRepository handles payment record database operations.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Record writes the terminal outcome for a reference. A reference resolves at
// most once; later writes only upgrade a presumed success to a confirmed one.
func (r *PaymentRepository) Record(record *models.PaymentRecord) error {
	var existing models.PaymentRecord
	err := r.db.Where("reference = ?", record.Reference).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(record).Error
	}
	if err != nil {
		return err
	}
	if existing.Status == models.PaymentStatusPresumed && record.Status == models.PaymentStatusSuccess {
		return r.db.Model(&existing).Updates(map[string]interface{}{
			"status":  models.PaymentStatusSuccess,
			"message": record.Message,
		}).Error
	}
	return nil
}

// FindByReference returns a payment record by gateway reference.
func (r *PaymentRepository) FindByReference(reference string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.Where("reference = ?", reference).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByOrderID returns payment records for an order, newest first.
func (r *PaymentRepository) FindByOrderID(orderID string) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.Where("order_id = ?", orderID).Order("created_at DESC").Find(&records).Error
	return records, err
}

// CountByStatus counts records in a given status.
func (r *PaymentRepository) CountByStatus(status string) (int64, error) {
	var total int64
	err := r.db.Model(&models.PaymentRecord{}).Where("status = ?", status).Count(&total).Error
	return total, err
}
