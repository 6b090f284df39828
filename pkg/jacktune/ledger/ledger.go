// Package ledger records the pre-optimization value of every OS tunable the
// optimizer changes, so deactivation restores exact prior values rather than
// hard-coded defaults. Entries are held in memory and mirrored to a Badger DB
// so a crash mid-optimization does not strand the system in a half-applied
// state.
package ledger

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Kind classifies a recorded tunable.
type Kind string

// Tunable kinds.
const (
	KindGovernor       Kind = "governor"
	KindMinFreq        Kind = "min_freq"
	KindIRQAffinity    Kind = "irq_affinity"
	KindIRQBalance     Kind = "irq_balance"
	KindUSBPower       Kind = "usb_power"
	KindUSBAutosuspend Kind = "usb_autosuspend"
	KindSchedParam     Kind = "sched_param"
)

// Key prefixes for different data types.
const (
	prefixEntry = "t:" // Tunable ledger entries
	prefixMeta  = "m:" // Metadata (persisted engine state)
)

const stateKey = prefixMeta + "state"

// Entry is one recorded tunable: what it was before we touched it and what
// we wrote. Exactly one live entry exists per applied tunable until it is
// reverted.
type Entry struct {
	Key        string    `json:"key"`
	Kind       Kind      `json:"kind"`
	Prior      string    `json:"prior"`
	Applied    string    `json:"applied"`
	Seq        uint64    `json:"seq"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger is the single source of truth for "what did we change".
type Ledger struct {
	db *badger.DB

	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // keys in insertion order
	nextSeq uint64
}

// ErrNotOpen is returned by operations on a closed ledger.
var ErrNotOpen = errors.New("ledger is not open")

// Open opens or creates a ledger at the given directory. Entries left over
// from a previous run are loaded so a crashed optimizer can still be
// reverted.
func Open(path string) (*Ledger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger's own logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		db:      db,
		entries: make(map[string]*Entry),
	}
	if err := l.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// load rebuilds the in-memory view from disk, restoring insertion order from
// the persisted sequence numbers.
func (l *Ledger) load() error {
	var loaded []*Entry

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			loaded = append(loaded, &entry)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Seq < loaded[j].Seq })
	for _, e := range loaded {
		l.entries[e.Key] = e
		l.order = append(l.order, e.Key)
		if e.Seq >= l.nextSeq {
			l.nextSeq = e.Seq + 1
		}
	}
	return nil
}

// Close closes the backing store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record stores the prior value for a tunable key. First write wins: if the
// key already has a live entry, Record is a no-op, which is what makes a
// repeated Apply idempotent.
func (l *Ledger) Record(key string, kind Kind, prior, applied string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrNotOpen
	}
	if _, exists := l.entries[key]; exists {
		return nil
	}

	entry := &Entry{
		Key:        key,
		Kind:       kind,
		Prior:      prior,
		Applied:    applied,
		Seq:        l.nextSeq,
		RecordedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEntry+key), data)
	})
	if err != nil {
		return err
	}

	l.entries[key] = entry
	l.order = append(l.order, key)
	l.nextSeq++
	return nil
}

// Lookup returns the live entry for a key, if any.
func (l *Ledger) Lookup(key string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Clear removes the entry for a key after a successful revert.
func (l *Ledger) Clear(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrNotOpen
	}
	if _, ok := l.entries[key]; !ok {
		return nil
	}

	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixEntry + key))
	})
	if err != nil {
		return err
	}

	delete(l.entries, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

// Entries returns live entries in reverse-insertion order, the order a
// revert pass must walk them.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.order))
	for i := len(l.order) - 1; i >= 0; i-- {
		out = append(out, *l.entries[l.order[i]])
	}
	return out
}

// Len reports the number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// SaveState persists the engine's optimization state so a restarted process
// can reconcile rather than blindly re-apply.
func (l *Ledger) SaveState(state string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return ErrNotOpen
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(stateKey), []byte(state))
	})
}

// LoadState returns the persisted engine state, or "" when none was saved.
func (l *Ledger) LoadState() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return "", ErrNotOpen
	}

	var state string
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state = string(val)
			return nil
		})
	})
	return state, err
}
