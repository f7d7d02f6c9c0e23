package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/anamnesis/internal/logging"
	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
// It must outlast a full step, generation attempts included.
const DefaultLockTTL = 2 * time.Minute

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serialises access to sessions by id.
// Locks are reference counted and dropped once no caller holds or waits for them.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithClock sets the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Tx is the exclusive claim on one session held for the duration of WithLock.
// Its methods must not be used after fn returns.
type Tx struct {
	m  *Manager
	id string
}

// ID returns the session id the claim covers.
func (tx *Tx) ID() string {
	return tx.id
}

// GetOrCreate loads the session, creating it in the initial state if absent.
func (tx *Tx) GetOrCreate(ctx context.Context) (*domain.Session, bool, error) {
	s, err := tx.m.store.Load(ctx, tx.id)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, false, fmt.Errorf("failed to check session existence: %w", err)
	}

	s = domain.NewSession(tx.id, tx.m.now())
	if err := tx.m.store.Save(ctx, s); err != nil {
		return nil, false, fmt.Errorf("failed to initialize session: %w", err)
	}
	return s.Snapshot(), true, nil
}

// Update replaces the state and data of an existing session.
// Returns domain.ErrSessionNotFound if the session is absent.
func (tx *Tx) Update(ctx context.Context, state domain.State, data map[string]string) error {
	s, err := tx.m.store.Load(ctx, tx.id)
	if err != nil {
		return err
	}
	s.State = state
	s.Data = domain.CopyData(data)
	s.UpdatedAt = tx.m.now()
	return tx.m.store.Save(ctx, s)
}

// Remove deletes the session.
func (tx *Tx) Remove(ctx context.Context) error {
	return tx.m.store.Delete(ctx, tx.id)
}

// GetOrCreate is the locked, single-operation form of Tx.GetOrCreate.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, bool, error) {
	var (
		s       *domain.Session
		created bool
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context, tx *Tx) error {
		var err error
		s, created, err = tx.GetOrCreate(ctx)
		return err
	})
	return s, created, err
}

// Update is the locked, single-operation form of Tx.Update.
func (m *Manager) Update(ctx context.Context, sessionID string, state domain.State, data map[string]string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context, tx *Tx) error {
		return tx.Update(ctx, state, data)
	})
}

// Remove is the locked, single-operation form of Tx.Remove.
func (m *Manager) Remove(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context, tx *Tx) error {
		return tx.Remove(ctx)
	})
}

// Load returns the stored session without creating it.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.store.Load(ctx, sessionID)
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// WithLock runs fn while holding the exclusive claim on sessionID.
// Calls for the same id run one at a time in arrival order of lock acquisition;
// calls for different ids never wait on each other.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context, *Tx) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The step may have been cancelled; the unlock still has to reach Redis.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx, &Tx{m: m, id: sessionID})
}
