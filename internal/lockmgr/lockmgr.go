// Package lockmgr implements the row-level lock manager: a bounded pool of
// per-record lock cells keyed by record number, with owner tracking, a
// condition-variable wait/notify protocol, eviction of unoccupied cells
// under pressure, and a background watchdog that force-releases cells held
// past their expiry.
package lockmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agilira/go-timecache"

	"github.com/calvinalkan/reccore/internal/txn"
)

// ErrPoolExhausted is returned by [Manager.GetOrCreate] when the cell table
// already holds M entries and none of them is unoccupied.
var ErrPoolExhausted = errors.New("lockmgr: cell pool exhausted, no evictable cell")

// Owner is the opaque, comparable identity of a lock holder. The engine
// mints one per caller session; it is never a goroutine or thread handle.
type Owner string

// Cell is one per-record lock. Zero value is unoccupied. All access goes
// through [Manager]; callers never touch a Cell directly.
//
// notify is closed and replaced on every release, giving waiters a channel
// to select on with a timeout — the retry-interval equivalent of a
// condition variable's Wait, but cancellable and with a bounded wake period.
type Cell struct {
	mu sync.Mutex

	occupied  bool
	owner     Owner
	startedAt int64 // unix nanoseconds, from go-timecache
	tx        *txn.Context
	notify    chan struct{}
}

func newCell() *Cell {
	return &Cell{notify: make(chan struct{})}
}

// wake closes the current notify channel (broadcasting to all waiters) and
// installs a fresh one for the next generation of waiters. Caller must hold
// c.mu.
func (c *Cell) wake() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// Manager is the bounded lock-cell table. One instance is owned by each
// Engine; it is never a process-wide singleton.
type Manager struct {
	mu    sync.Mutex
	cells map[int64]*Cell

	maxCells     int
	expiry       time.Duration
	retryWait    time.Duration
	watchdogTick time.Duration
	now          func() int64
	stopWatchdog chan struct{}
	watchdogDone chan struct{}
}

// Config tunes the lock manager's bounds.
type Config struct {
	// MaxCells is M: the maximum number of lock cells held at once.
	MaxCells int
	// Expiry is L: a cell held longer than this is force-released by the
	// watchdog.
	Expiry time.Duration
	// RetryWait is T: the interval a blocked lock() waits for a wake signal
	// before re-checking cell occupancy.
	RetryWait time.Duration
	// WatchdogInterval is how often the watchdog scans for expired cells.
	// It is independent of the per-lock retry interval T.
	WatchdogInterval time.Duration
}

// New builds a Manager and starts its watchdog goroutine. Call [Manager.Close]
// to stop the watchdog.
func New(cfg Config) *Manager {
	m := &Manager{
		cells:        make(map[int64]*Cell),
		maxCells:     cfg.MaxCells,
		expiry:       cfg.Expiry,
		retryWait:    cfg.RetryWait,
		watchdogTick: cfg.WatchdogInterval,
		now:          timecache.CachedTimeNano,
		stopWatchdog: make(chan struct{}),
		watchdogDone: make(chan struct{}),
	}

	go m.runWatchdog()

	return m
}

// Close stops the background watchdog. It does not release any held cells.
func (m *Manager) Close() {
	close(m.stopWatchdog)
	<-m.watchdogDone
}

// Len reports the current number of tracked cells (occupied or not).
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.cells)
}

// Occupied reports how many tracked cells currently hold a lock.
func (m *Manager) Occupied() int {
	m.mu.Lock()
	cells := make([]*Cell, 0, len(m.cells))
	for _, c := range m.cells {
		cells = append(cells, c)
	}
	m.mu.Unlock()

	n := 0

	for _, c := range cells {
		c.mu.Lock()
		if c.occupied {
			n++
		}
		c.mu.Unlock()
	}

	return n
}

// getOrCreate returns the existing cell for n or creates one. If the table
// is at capacity, it evicts one unoccupied cell to make room; if every cell
// is occupied, it fails with [ErrPoolExhausted].
func (m *Manager) getOrCreate(n int64) (*Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cells[n]; ok {
		return c, nil
	}

	if len(m.cells) >= m.maxCells {
		evicted := false

		for k, c := range m.cells {
			c.mu.Lock()
			occupied := c.occupied
			c.mu.Unlock()

			if !occupied {
				delete(m.cells, k)
				evicted = true

				break
			}
		}

		if !evicted {
			return nil, ErrPoolExhausted
		}
	}

	c := newCell()
	m.cells[n] = c

	return c, nil
}

// Lock blocks until it occupies the cell for n under owner, or ctx is done.
// Between attempts it waits on the cell's wake channel for up to T (the
// manager's RetryWait), then re-checks occupancy; a timed-out wait and a
// spurious wake are indistinguishable and both simply retry. tx is attached
// to the cell at the moment of acquisition and becomes its transaction
// context.
func (m *Manager) Lock(ctx context.Context, n int64, owner Owner, tx *txn.Context) error {
	cell, err := m.getOrCreate(n)
	if err != nil {
		return err
	}

	for {
		cell.mu.Lock()

		if !cell.occupied {
			cell.occupied = true
			cell.owner = owner
			cell.startedAt = m.now()
			cell.tx = tx
			cell.mu.Unlock()

			return nil
		}

		wait := cell.notify
		cell.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(m.retryWait)

		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// IsLocked reports whether a cell exists for n and is currently occupied.
func (m *Manager) IsLocked(n int64) bool {
	m.mu.Lock()
	cell, ok := m.cells[n]
	m.mu.Unlock()

	if !ok {
		return false
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	return cell.occupied
}

// ErrNotHeld is returned by [Manager.Check] when n is not held by the given
// owner; the engine maps it to its own TransactionError.
var ErrNotHeld = errors.New("lockmgr: record is not locked by this owner")

// Check returns the transaction context for n if it is currently occupied
// by owner; otherwise ErrNotHeld.
func (m *Manager) Check(n int64, owner Owner) (*txn.Context, error) {
	m.mu.Lock()
	cell, ok := m.cells[n]
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotHeld
	}

	cell.mu.Lock()
	defer cell.mu.Unlock()

	if !cell.occupied || cell.owner != owner {
		return nil, ErrNotHeld
	}

	return cell.tx, nil
}

// Release releases the cell for n unconditionally (used by unlock, whether
// it committed or not) and wakes every waiter.
func (m *Manager) Release(n int64) {
	m.mu.Lock()
	cell, ok := m.cells[n]
	m.mu.Unlock()

	if !ok {
		return
	}

	cell.mu.Lock()
	cell.occupied = false
	cell.owner = ""
	cell.startedAt = 0
	cell.tx = nil
	cell.wake()
	cell.mu.Unlock()
}

// ForceRelease drops any lock cell for n, occupied or not, and wakes its
// waiters. Used when a create fills a slot (possibly a reused deleted one)
// and a stale cell might remain from an earlier generation of the same
// record number.
func (m *Manager) ForceRelease(n int64) {
	m.mu.Lock()
	cell, ok := m.cells[n]
	if ok {
		delete(m.cells, n)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	cell.mu.Lock()
	cell.occupied = false
	cell.wake()
	cell.mu.Unlock()
}

// ReleaseAllOwnedBy releases every cell currently occupied by owner, without
// commit, and wakes their waiters. Used when a caller session ends.
func (m *Manager) ReleaseAllOwnedBy(owner Owner) {
	m.mu.Lock()
	cells := make([]*Cell, 0, len(m.cells))
	for _, c := range m.cells {
		cells = append(cells, c)
	}
	m.mu.Unlock()

	for _, c := range cells {
		c.mu.Lock()
		if c.occupied && c.owner == owner {
			c.occupied = false
			c.owner = ""
			c.startedAt = 0
			c.tx = nil
			c.wake()
		}
		c.mu.Unlock()
	}
}

// runWatchdog wakes every WatchdogInterval, force-releases any cell whose
// age has reached Expiry, and wakes its waiters. It never commits.
func (m *Manager) runWatchdog() {
	defer close(m.watchdogDone)

	ticker := time.NewTicker(m.watchdogTick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopWatchdog:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Manager) evictExpired() {
	m.mu.Lock()
	cells := make([]*Cell, 0, len(m.cells))
	for _, c := range m.cells {
		cells = append(cells, c)
	}
	m.mu.Unlock()

	now := m.now()
	expiryNanos := m.expiry.Nanoseconds()

	for _, c := range cells {
		c.mu.Lock()
		if c.occupied && now-c.startedAt >= expiryNanos {
			c.occupied = false
			c.owner = ""
			c.startedAt = 0
			c.tx = nil
			c.wake()
		}
		c.mu.Unlock()
	}
}
