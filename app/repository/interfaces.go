package repository

import (
	"context"

	"github.com/ManuelReschke/CardVault/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	TouchAPIKeyUsage(ctx context.Context, id uint) error
	Update(ctx context.Context, user *models.User) error
}

// PaymentMethodRepository exposes read access to registered payment methods.
// Writes go through the billing reconciliation engine only.
type PaymentMethodRepository interface {
	ListByUserID(ctx context.Context, userID uint) ([]models.PaymentMethod, error)
	GetByUserAndProviderID(ctx context.Context, userID uint, providerPaymentMethodID string) (*models.PaymentMethod, error)
	GetByProviderID(ctx context.Context, providerPaymentMethodID string) (*models.PaymentMethod, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User          UserRepository
	PaymentMethod PaymentMethodRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		PaymentMethod: NewPaymentMethodRepository(db),
	}
}
