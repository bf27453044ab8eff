package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/ManuelReschke/CardVault/app/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the storage operations used by the billing pipeline.
// Payment-method writes happen only inside WithUserLock.
type Repository interface {
	FindUserByCustomerID(ctx context.Context, customerID string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	FindPaymentMethod(ctx context.Context, userID uint, providerPaymentMethodID string) (*models.PaymentMethod, error)
	FindPaymentMethodByProviderID(ctx context.Context, providerPaymentMethodID string) (*models.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, userID uint) ([]models.PaymentMethod, error)
	// WithUserLock runs fn with exclusive access to the user's payment methods.
	WithUserLock(ctx context.Context, userID uint, fn func(PaymentMethodStore) error) error

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
	ListFailedWebhookEvents(ctx context.Context, provider string, limit int) ([]models.BillingWebhookEvent, error)
}

// PaymentMethodStore is one user's payment methods, valid inside WithUserLock.
type PaymentMethodStore interface {
	FindPaymentMethod(providerPaymentMethodID string) (*models.PaymentMethod, error)
	CountPaymentMethods() (int64, error)
	HasDefault() (bool, error)
	// UpsertPaymentMethod inserts pm unless the (user, provider id) pair
	// exists. It reports whether a row was created; pm holds the stored row.
	UpsertPaymentMethod(pm *models.PaymentMethod) (bool, error)
	DeletePaymentMethod(id uint) error
	LatestPaymentMethod() (*models.PaymentMethod, error)
	SetDefault(id uint) error
}

type gormRepository struct {
	db       *gorm.DB
	users    repository.UserRepository
	payments repository.PaymentMethodRepository
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{
		db:       db,
		users:    repository.NewUserRepository(db),
		payments: repository.NewPaymentMethodRepository(db),
	}
}

func (r *gormRepository) FindUserByCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	u, err := r.users.GetByStripeCustomerID(ctx, customerID)
	return u, translateNotFound(err, ErrUserNotFound)
}

func (r *gormRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	u, err := r.users.GetByID(ctx, id)
	return u, translateNotFound(err, ErrUserNotFound)
}

func (r *gormRepository) FindPaymentMethod(ctx context.Context, userID uint, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	pm, err := r.payments.GetByUserAndProviderID(ctx, userID, providerPaymentMethodID)
	return pm, translateNotFound(err, ErrPaymentMethodNotFound)
}

func (r *gormRepository) FindPaymentMethodByProviderID(ctx context.Context, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	pm, err := r.payments.GetByProviderID(ctx, providerPaymentMethodID)
	return pm, translateNotFound(err, ErrPaymentMethodNotFound)
}

func (r *gormRepository) ListPaymentMethods(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	return r.payments.ListByUserID(ctx, userID)
}

// WithUserLock opens a transaction and takes a row lock on the user so that
// count/default checks and the writes that depend on them are serialized.
func (r *gormRepository) WithUserLock(ctx context.Context, userID uint, fn func(PaymentMethodStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&user, userID).Error
		if err != nil {
			return translateNotFound(err, ErrUserNotFound)
		}
		return fn(&gormPaymentMethodStore{tx: tx, userID: userID})
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListFailedWebhookEvents(ctx context.Context, provider string, limit int) ([]models.BillingWebhookEvent, error) {
	var events []models.BillingWebhookEvent
	q := r.db.WithContext(ctx).
		Where("provider = ? AND signature_valid = ? AND processing_error <> ''", provider, true).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

type gormPaymentMethodStore struct {
	tx     *gorm.DB
	userID uint
}

func (s *gormPaymentMethodStore) FindPaymentMethod(providerPaymentMethodID string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := s.tx.Where("user_id = ? AND provider_payment_method_id = ?", s.userID, providerPaymentMethodID).
		First(&pm).Error
	if err != nil {
		return nil, translateNotFound(err, ErrPaymentMethodNotFound)
	}
	return &pm, nil
}

func (s *gormPaymentMethodStore) CountPaymentMethods() (int64, error) {
	var count int64
	err := s.tx.Model(&models.PaymentMethod{}).Where("user_id = ?", s.userID).Count(&count).Error
	return count, err
}

func (s *gormPaymentMethodStore) HasDefault() (bool, error) {
	var count int64
	err := s.tx.Model(&models.PaymentMethod{}).
		Where("user_id = ? AND is_default = ?", s.userID, true).
		Count(&count).Error
	return count > 0, err
}

func (s *gormPaymentMethodStore) UpsertPaymentMethod(pm *models.PaymentMethod) (bool, error) {
	pm.UserID = s.userID
	tx := s.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "provider_payment_method_id"},
		},
		DoNothing: true,
	}).Create(pm)
	if tx.Error != nil {
		return false, tx.Error
	}
	created := tx.RowsAffected > 0

	// Ensure ID and flags reflect the stored row after upsert.
	stored, err := s.FindPaymentMethod(pm.ProviderPaymentMethodID)
	if err != nil {
		return false, err
	}
	*pm = *stored
	return created, nil
}

func (s *gormPaymentMethodStore) DeletePaymentMethod(id uint) error {
	return s.tx.Where("user_id = ?", s.userID).Delete(&models.PaymentMethod{}, id).Error
}

func (s *gormPaymentMethodStore) LatestPaymentMethod() (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := s.tx.Where("user_id = ?", s.userID).Order("id DESC").First(&pm).Error
	if err != nil {
		return nil, translateNotFound(err, ErrPaymentMethodNotFound)
	}
	return &pm, nil
}

func (s *gormPaymentMethodStore) SetDefault(id uint) error {
	if err := s.tx.Model(&models.PaymentMethod{}).
		Where("user_id = ? AND id <> ? AND is_default = ?", s.userID, id, true).
		Update("is_default", false).Error; err != nil {
		return err
	}
	return s.tx.Model(&models.PaymentMethod{}).
		Where("user_id = ? AND id = ?", s.userID, id).
		Update("is_default", true).Error
}

func translateNotFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}
