package repository

import (
	"context"

	"github.com/ManuelReschke/CardVault/app/models"
	"gorm.io/gorm"
)

type paymentMethodRepository struct {
	db *gorm.DB
}

// NewPaymentMethodRepository creates a read-only payment method repository.
func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

// ListByUserID returns the user's payment methods, default first, newest next.
func (r *paymentMethodRepository) ListByUserID(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("id DESC").
		Find(&methods).Error
	return methods, err
}

func (r *paymentMethodRepository) GetByUserAndProviderID(ctx context.Context, userID uint, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider_payment_method_id = ?", userID, providerPaymentMethodID).
		First(&pm).Error
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (r *paymentMethodRepository) GetByProviderID(ctx context.Context, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("provider_payment_method_id = ?", providerPaymentMethodID).
		Order("id ASC").
		First(&pm).Error
	if err != nil {
		return nil, err
	}
	return &pm, nil
}
