package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/CardVault/app/models"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and local runs.
// Per-user locks give the same serialization as the GORM row lock.
type MemoryRepository struct {
	mu      sync.Mutex
	users   map[uint]models.User
	methods map[uint]models.PaymentMethod
	events  map[uint]models.BillingWebhookEvent
	nextPM  uint
	nextEvt uint
	locks   map[uint]*sync.Mutex

	// UpsertErr, when set, is returned by every UpsertPaymentMethod call.
	UpsertErr error
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:   make(map[uint]models.User),
		methods: make(map[uint]models.PaymentMethod),
		events:  make(map[uint]models.BillingWebhookEvent),
		locks:   make(map[uint]*sync.Mutex),
	}
}

// AddUser stores u as-is; u.ID must be set.
func (r *MemoryRepository) AddUser(u models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// PaymentMethods returns a snapshot of the user's records ordered by id.
func (r *MemoryRepository) PaymentMethods(userID uint) []models.PaymentMethod {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userMethodsLocked(userID)
}

// WebhookEvents returns a snapshot of the ledger ordered by id.
func (r *MemoryRepository) WebhookEvents() []models.BillingWebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BillingWebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepository) FindUserByCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if customerID == "" {
		return nil, ErrUserNotFound
	}
	for _, u := range r.users {
		if u.StripeCustomerID == customerID {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) FindPaymentMethod(ctx context.Context, userID uint, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(userID, providerPaymentMethodID)
}

func (r *MemoryRepository) FindPaymentMethodByProviderID(ctx context.Context, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *models.PaymentMethod
	for _, pm := range r.methods {
		if pm.ProviderPaymentMethodID != providerPaymentMethodID {
			continue
		}
		if found == nil || pm.ID < found.ID {
			pm := pm
			found = &pm
		}
	}
	if found == nil {
		return nil, ErrPaymentMethodNotFound
	}
	return found, nil
}

func (r *MemoryRepository) ListPaymentMethods(ctx context.Context, userID uint) ([]models.PaymentMethod, error) {
	methods := r.PaymentMethods(userID)
	sort.SliceStable(methods, func(i, j int) bool {
		if methods[i].IsDefault != methods[j].IsDefault {
			return methods[i].IsDefault
		}
		return methods[i].ID > methods[j].ID
	})
	return methods, nil
}

func (r *MemoryRepository) WithUserLock(ctx context.Context, userID uint, fn func(PaymentMethodStore) error) error {
	r.mu.Lock()
	if _, ok := r.users[userID]; !ok {
		r.mu.Unlock()
		return ErrUserNotFound
	}
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	r.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryPaymentMethodStore{repo: r, userID: userID})
}

func (r *MemoryRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			e := e
			return false, &e, nil
		}
	}
	r.nextEvt++
	event.ID = r.nextEvt
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	r.events[event.ID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *MemoryRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.Outcome = outcome
	e.ProcessingError = processingError
	e.UpdatedAt = now
	r.events[id] = e
	return nil
}

func (r *MemoryRepository) ListFailedWebhookEvents(ctx context.Context, provider string, limit int) ([]models.BillingWebhookEvent, error) {
	var out []models.BillingWebhookEvent
	for _, e := range r.WebhookEvents() {
		if e.Provider != provider || !e.SignatureValid || e.ProcessingError == "" {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) findLocked(userID uint, providerPaymentMethodID string) (*models.PaymentMethod, error) {
	for _, pm := range r.methods {
		if pm.UserID == userID && pm.ProviderPaymentMethodID == providerPaymentMethodID {
			pm := pm
			return &pm, nil
		}
	}
	return nil, ErrPaymentMethodNotFound
}

func (r *MemoryRepository) userMethodsLocked(userID uint) []models.PaymentMethod {
	var out []models.PaymentMethod
	for _, pm := range r.methods {
		if pm.UserID == userID {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memoryPaymentMethodStore struct {
	repo   *MemoryRepository
	userID uint
}

func (s *memoryPaymentMethodStore) FindPaymentMethod(providerPaymentMethodID string) (*models.PaymentMethod, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	return s.repo.findLocked(s.userID, providerPaymentMethodID)
}

func (s *memoryPaymentMethodStore) CountPaymentMethods() (int64, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	return int64(len(s.repo.userMethodsLocked(s.userID))), nil
}

func (s *memoryPaymentMethodStore) HasDefault() (bool, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	for _, pm := range s.repo.userMethodsLocked(s.userID) {
		if pm.IsDefault {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryPaymentMethodStore) UpsertPaymentMethod(pm *models.PaymentMethod) (bool, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	if s.repo.UpsertErr != nil {
		return false, s.repo.UpsertErr
	}
	if existing, err := s.repo.findLocked(s.userID, pm.ProviderPaymentMethodID); err == nil {
		*pm = *existing
		return false, nil
	}
	s.repo.nextPM++
	pm.ID = s.repo.nextPM
	pm.UserID = s.userID
	if pm.UUID == "" {
		pm.UUID = uuid.New().String()
	}
	pm.CreatedAt = time.Now()
	pm.UpdatedAt = pm.CreatedAt
	s.repo.methods[pm.ID] = *pm
	return true, nil
}

func (s *memoryPaymentMethodStore) DeletePaymentMethod(id uint) error {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	if pm, ok := s.repo.methods[id]; ok && pm.UserID == s.userID {
		delete(s.repo.methods, id)
	}
	return nil
}

func (s *memoryPaymentMethodStore) LatestPaymentMethod() (*models.PaymentMethod, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	methods := s.repo.userMethodsLocked(s.userID)
	if len(methods) == 0 {
		return nil, ErrPaymentMethodNotFound
	}
	latest := methods[len(methods)-1]
	return &latest, nil
}

func (s *memoryPaymentMethodStore) SetDefault(id uint) error {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	if pm, ok := s.repo.methods[id]; !ok || pm.UserID != s.userID {
		return ErrPaymentMethodNotFound
	}
	for pmID, pm := range s.repo.methods {
		if pm.UserID != s.userID {
			continue
		}
		pm.IsDefault = pmID == id
		s.repo.methods[pmID] = pm
	}
	return nil
}
