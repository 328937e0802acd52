package inventory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/google/uuid"
)

var (
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrHoldExpired           = errors.New("hold expired")
	ErrHoldNotFound          = errors.New("hold not found")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrUnknownInventory      = errors.New("inventory key has no provisioned capacity")
)

// tombstoneRetention bounds how long finished holds are remembered for idempotent replies.
const tombstoneRetention = 24 * time.Hour

type holdState int

const (
	stateReleased holdState = iota
	stateExpired
)

// Hold is a time-bounded reservation of seats on one inventory key.
type Hold struct {
	ID        string             `json:"id"`
	Key       model.InventoryKey `json:"key"`
	BookingID string             `json:"booking_id"`
	Quantity  int                `json:"quantity"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

func (h *Hold) Ref() model.HoldRef {
	return model.HoldRef{HoldID: h.ID, Key: h.Key, Quantity: h.Quantity}
}

// HoldFromRef rebuilds the handle a booking keeps for one of its holds.
func HoldFromRef(ref model.HoldRef, bookingID string) *Hold {
	return &Hold{ID: ref.HoldID, Key: ref.Key, BookingID: bookingID, Quantity: ref.Quantity}
}

type Snapshot struct {
	Key         model.InventoryKey `json:"key"`
	Total       int                `json:"total_seats"`
	Committed   int                `json:"committed_seats"`
	Held        int                `json:"held_seats"`
	Available   int                `json:"available_seats"`
	ActiveHolds int                `json:"active_holds"`
}

type Manager interface {
	Reserve(ctx context.Context, key model.InventoryKey, bookingID string, quantity int, ttl time.Duration) (*Hold, error)
	Commit(ctx context.Context, hold *Hold) error
	Revert(ctx context.Context, hold *Hold) error
	Release(ctx context.Context, hold *Hold) error
	ExpireStale(now time.Time) int
	Provision(key model.InventoryKey, total int) int
	Restore(hold *Hold, committed bool) error
	Known(key model.InventoryKey) bool
	Snapshot(ctx context.Context, key model.InventoryKey) (Snapshot, error)
}

type tombstone struct {
	state holdState
	at    time.Time
}

// entry is the state of one inventory key. total stays -1 until provisioned.
type entry struct {
	mu        sync.Mutex
	total     int
	committed int
	held      int
	holds     map[string]*Hold
	commits   map[string]*Hold
	finished  map[string]tombstone
}

func newEntry() *entry {
	return &entry{
		total:    -1,
		holds:    make(map[string]*Hold),
		commits:  make(map[string]*Hold),
		finished: make(map[string]tombstone),
	}
}

type shard struct {
	mu      sync.RWMutex
	entries map[model.InventoryKey]*entry
}

type manager struct {
	shards []*shard
	now    func() time.Time
	log    *logger.Logger
}

type Option func(*manager)

// WithClock swaps the time source; tests use it to step past hold TTLs.
func WithClock(now func() time.Time) Option {
	return func(m *manager) { m.now = now }
}

func NewManager(shards int, log *logger.Logger, opts ...Option) Manager {
	if shards <= 0 {
		shards = 1
	}
	m := &manager{
		shards: make([]*shard, shards),
		now:    time.Now,
		log:    log,
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[model.InventoryKey]*entry)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) shardFor(key model.InventoryKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *manager) entryFor(key model.InventoryKey, create bool) *entry {
	s := m.shardFor(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; !ok {
		e = newEntry()
		s.entries[key] = e
	}
	return e
}

// Provision sets the total seats for key unless it is already known, and returns the
// total in effect. Concurrent first bookings on a key race here; the first one wins.
// The total never drops below seats already restored onto the key.
func (m *manager) Provision(key model.InventoryKey, total int) int {
	e := m.entryFor(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.total < 0 {
		e.total = max(total, e.committed+e.held, 0)
		if e.total > total {
			m.log.Warn("Provider capacity below seats already sold",
				"inventory_key", key.String(),
				"provider_total", total,
				"restored", e.committed+e.held,
			)
		}
	}
	return e.total
}

// Restore re-registers a hold recorded by a stored booking. Restored seats count against
// the key even before it is provisioned. A hold that already lapsed returns ErrHoldExpired;
// restoring a hold the manager already tracks is a no-op.
func (m *manager) Restore(hold *Hold, committed bool) error {
	if hold.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	e := m.entryFor(hold.Key, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.holds[hold.ID]; ok {
		return nil
	}
	if _, ok := e.commits[hold.ID]; ok {
		return nil
	}

	restored := *hold
	if committed {
		e.commits[restored.ID] = &restored
		e.committed += restored.Quantity
	} else {
		if m.now().After(restored.ExpiresAt) {
			e.finished[restored.ID] = tombstone{state: stateExpired, at: m.now()}
			return ErrHoldExpired
		}
		e.holds[restored.ID] = &restored
		e.held += restored.Quantity
	}

	if e.total >= 0 && e.committed+e.held > e.total {
		m.log.Warn("Restored seats exceed provisioned capacity",
			"inventory_key", hold.Key.String(),
			"total", e.total,
			"restored", e.committed+e.held,
		)
		e.total = e.committed + e.held
	}
	return nil
}

func (m *manager) Known(key model.InventoryKey) bool {
	e := m.entryFor(key, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total >= 0
}

func (m *manager) Reserve(ctx context.Context, key model.InventoryKey, bookingID string, quantity int, ttl time.Duration) (*Hold, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	e := m.entryFor(key, false)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInventory, key)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.total < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInventory, key)
	}

	now := m.now()
	m.expireLocked(e, now)

	if remaining := e.total - e.committed - e.held; quantity > remaining {
		return nil, fmt.Errorf("%w: requested %d, remaining %d", ErrInsufficientInventory, quantity, remaining)
	}

	hold := &Hold{
		ID:        uuid.NewString(),
		Key:       key,
		BookingID: bookingID,
		Quantity:  quantity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	e.holds[hold.ID] = hold
	e.held += quantity

	m.log.Debug("Seats held",
		"inventory_key", key.String(),
		"hold_id", hold.ID,
		"booking_id", bookingID,
		"quantity", quantity,
		"remaining", e.total-e.committed-e.held,
	)
	return hold, nil
}

func (m *manager) Commit(_ context.Context, hold *Hold) error {
	e := m.entryFor(hold.Key, false)
	if e == nil {
		return ErrHoldNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.commits[hold.ID]; ok {
		return nil
	}

	// Expiry is settled before the commit is considered.
	m.expireLocked(e, m.now())

	active, ok := e.holds[hold.ID]
	if !ok {
		if ts, done := e.finished[hold.ID]; done && ts.state == stateExpired {
			return ErrHoldExpired
		}
		return ErrHoldNotFound
	}

	delete(e.holds, hold.ID)
	e.held -= active.Quantity
	e.committed += active.Quantity
	e.commits[hold.ID] = active
	return nil
}

// Revert turns a committed hold back into a plain hold with its original expiry.
// Used when a downstream step fails after the seats were committed.
func (m *manager) Revert(_ context.Context, hold *Hold) error {
	e := m.entryFor(hold.Key, false)
	if e == nil {
		return ErrHoldNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	committed, ok := e.commits[hold.ID]
	if !ok {
		if _, active := e.holds[hold.ID]; active {
			return nil
		}
		return ErrHoldNotFound
	}

	delete(e.commits, hold.ID)
	e.committed -= committed.Quantity
	e.holds[hold.ID] = committed
	e.held += committed.Quantity
	m.expireLocked(e, m.now())
	return nil
}

func (m *manager) Release(_ context.Context, hold *Hold) error {
	e := m.entryFor(hold.Key, false)
	if e == nil {
		return ErrHoldNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	m.expireLocked(e, now)

	if active, ok := e.holds[hold.ID]; ok {
		delete(e.holds, hold.ID)
		e.held -= active.Quantity
		e.finished[hold.ID] = tombstone{state: stateReleased, at: now}
		return nil
	}
	if committed, ok := e.commits[hold.ID]; ok {
		delete(e.commits, hold.ID)
		e.committed -= committed.Quantity
		e.finished[hold.ID] = tombstone{state: stateReleased, at: now}
		return nil
	}
	if _, ok := e.finished[hold.ID]; ok {
		return nil
	}
	return ErrHoldNotFound
}

func (m *manager) ExpireStale(now time.Time) int {
	expired := 0
	for _, s := range m.shards {
		s.mu.RLock()
		entries := make([]*entry, 0, len(s.entries))
		for _, e := range s.entries {
			entries = append(entries, e)
		}
		s.mu.RUnlock()

		for _, e := range entries {
			e.mu.Lock()
			expired += m.expireLocked(e, now)
			e.mu.Unlock()
		}
	}
	if expired > 0 {
		m.log.Info("Expired stale seat holds", "count", expired)
	}
	return expired
}

func (m *manager) Snapshot(_ context.Context, key model.InventoryKey) (Snapshot, error) {
	e := m.entryFor(key, false)
	if e == nil {
		return Snapshot{}, ErrUnknownInventory
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.total < 0 {
		return Snapshot{}, ErrUnknownInventory
	}

	m.expireLocked(e, m.now())
	return Snapshot{
		Key:         key,
		Total:       e.total,
		Committed:   e.committed,
		Held:        e.held,
		Available:   e.total - e.committed - e.held,
		ActiveHolds: len(e.holds),
	}, nil
}

// expireLocked drops holds past their expiry. Caller holds e.mu.
func (m *manager) expireLocked(e *entry, now time.Time) int {
	expired := 0
	for id, h := range e.holds {
		if now.After(h.ExpiresAt) {
			delete(e.holds, id)
			e.held -= h.Quantity
			e.finished[id] = tombstone{state: stateExpired, at: now}
			expired++
		}
	}
	for id, ts := range e.finished {
		if now.Sub(ts.at) > tombstoneRetention {
			delete(e.finished, id)
		}
	}
	return expired
}
