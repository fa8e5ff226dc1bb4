package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ronalking182/errandpay/internal/models"
)

// Migrate ensures the payment tables exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.CheckoutSession{},
		&models.PaymentRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}
