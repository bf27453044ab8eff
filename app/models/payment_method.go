package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentMethod is a locally registered card captured through the provider.
// Card details are immutable once stored; only IsDefault changes.
type PaymentMethod struct {
	ID                      uint      `gorm:"primaryKey" json:"-"`
	UUID                    string    `gorm:"type:char(36);uniqueIndex" json:"id"`
	UserID                  uint      `gorm:"not null;index:ux_payment_methods_user_provider_pm,unique,priority:1" json:"-"`
	ProviderPaymentMethodID string    `gorm:"type:varchar(191);not null;index:ux_payment_methods_user_provider_pm,unique,priority:2;index" json:"payment_method_id"`
	Brand                   string    `gorm:"type:varchar(30);not null;default:''" json:"brand"`
	Last4                   string    `gorm:"type:varchar(4);not null;default:''" json:"last4"`
	ExpMonth                int       `gorm:"not null;default:0" json:"exp_month"`
	ExpYear                 int       `gorm:"not null;default:0" json:"exp_year"`
	IsDefault               bool      `gorm:"not null;default:false;index" json:"is_default"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the public UUID.
func (pm *PaymentMethod) BeforeCreate(tx *gorm.DB) error {
	if pm.UUID == "" {
		pm.UUID = uuid.New().String()
	}
	return nil
}
