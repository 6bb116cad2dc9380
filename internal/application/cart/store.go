package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	domcheckout "github.com/Zhima-Mochi/minishop-cart/internal/domain/checkout"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	NameCart       = "cart"
	NameFavourites = "favourites"

	defaultPersistTimeout = 2 * time.Second
)

type Options struct {
	// PersistTimeout bounds every storage read and write.
	PersistTimeout time.Duration
}

// Store is the authoritative, durable collection of selected items. Memory is the source of
// truth for the running process; every mutation is persisted asynchronously and storage
// failures never roll a mutation back.
type Store struct {
	name           string
	key            string
	storage        domcart.Storage
	persistTimeout time.Duration

	mu      sync.Mutex
	items   *domcart.Collection
	version uint64

	// persistMu serialises writes; attempted is the newest version handed to storage.
	persistMu sync.Mutex
	attempted uint64

	inflightMu sync.Mutex
	inflight   int
	waiters    []chan struct{}

	log             observability.Logger
	mutations       observability.Counter
	storageFailures observability.Counter
}

func NewStore(name, key string, storage domcart.Storage, tel observability.Observability, opts Options) *Store {
	_, logger, metrics := observability.Parts(tel)
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	return &Store{
		name:            name,
		key:             key,
		storage:         storage,
		persistTimeout:  opts.PersistTimeout,
		items:           domcart.NewCollection(),
		log:             logger.With(observability.F("component", "store"), observability.F("store", name)),
		mutations:       metrics.Counter(observability.MStoreMutations),
		storageFailures: metrics.Counter(observability.MStorageFailures),
	}
}

func NewCartStore(storage domcart.Storage, tel observability.Observability, opts Options) *Store {
	return NewStore(NameCart, domcart.StorageKeyCart, storage, tel, opts)
}

func NewFavouritesStore(storage domcart.Storage, tel observability.Observability, opts Options) *Store {
	return NewStore(NameFavourites, domcart.StorageKeyFavourites, storage, tel, opts)
}

func (s *Store) Name() string { return s.name }

// Add inserts item and reports true, or reports false when an item with the same id is
// already present. Only invalid items produce an error.
func (s *Store) Add(item domcart.Item) (bool, error) {
	if err := item.Validate(); err != nil {
		s.countMutation("add", "invalid")
		return false, err
	}

	s.mu.Lock()
	if !s.items.Add(item) {
		s.mu.Unlock()
		s.countMutation("add", "duplicate")
		return false, nil
	}
	version, payload, err := s.commitLocked()
	s.mu.Unlock()

	s.countMutation("add", "inserted")
	s.persistAsync(version, payload, err)
	return true, nil
}

// Remove deletes the item with id; absent ids are ignored.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	if !s.items.Remove(id) {
		s.mu.Unlock()
		s.countMutation("remove", "absent")
		return
	}
	version, payload, err := s.commitLocked()
	s.mu.Unlock()

	s.countMutation("remove", "removed")
	s.persistAsync(version, payload, err)
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.items.Clear()
	version, payload, err := s.commitLocked()
	s.mu.Unlock()

	s.countMutation("clear", "cleared")
	s.persistAsync(version, payload, err)
}

// List returns a snapshot that later mutations do not affect.
func (s *Store) List() []domcart.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Items()
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Contains(id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// Load restores the collection from storage. Missing, unreadable or malformed records leave
// the store empty; a malformed record is overwritten by the next successful save.
func (s *Store) Load(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	items, err := s.read(ctx)
	if err != nil {
		s.storageFailures.Add(1, observability.L("store", s.name), observability.L("op", "load"))
		s.log.Warn("store_load_failed",
			observability.F("kind", string(domcheckout.FailureStorage)),
			observability.F("error", err),
		)
		items = nil
	}

	s.mu.Lock()
	s.items = domcart.NewCollection()
	skipped := 0
	for _, it := range items {
		if it.Validate() != nil || !s.items.Add(it) {
			skipped++
		}
	}
	s.version++
	count := s.items.Len()
	s.mu.Unlock()

	s.log.Info("store_loaded",
		observability.F("items", count),
		observability.F("skipped", skipped),
	)
}

// Flush waits until every persist started so far has finished.
func (s *Store) Flush(ctx context.Context) error {
	s.inflightMu.Lock()
	if s.inflight == 0 {
		s.inflightMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.inflightMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) read(ctx context.Context) ([]domcart.Item, error) {
	raw, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("store %s: read: %w", s.name, err)
	}
	if !found || raw == "" {
		return nil, nil
	}
	var items []domcart.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("store %s: decode: %w", s.name, err)
	}
	return items, nil
}

// commitLocked bumps the version and encodes the current collection. Callers hold s.mu.
func (s *Store) commitLocked() (uint64, string, error) {
	s.version++
	data, err := json.Marshal(s.items.Items())
	if err != nil {
		return s.version, "", fmt.Errorf("store %s: encode: %w", s.name, err)
	}
	return s.version, string(data), nil
}

func (s *Store) persistAsync(version uint64, payload string, encodeErr error) {
	if encodeErr != nil {
		s.storageFailure(version, encodeErr)
		return
	}

	s.inflightMu.Lock()
	s.inflight++
	s.inflightMu.Unlock()

	go func() {
		defer s.persistDone()
		s.persist(version, payload)
	}()
}

func (s *Store) persist(version uint64, payload string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if version <= s.attempted {
		// a newer snapshot was already written
		return
	}
	s.attempted = version

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, s.key, payload); err != nil {
		s.storageFailure(version, err)
		return
	}
	s.log.Debug("store_persisted", observability.F("version", version))
}

func (s *Store) persistDone() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight--
	if s.inflight > 0 {
		return
	}
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = nil
}

func (s *Store) storageFailure(version uint64, err error) {
	s.storageFailures.Add(1, observability.L("store", s.name), observability.L("op", "save"))
	s.log.Warn("store_persist_failed",
		observability.F("kind", string(domcheckout.FailureStorage)),
		observability.F("version", version),
		observability.F("error", err),
	)
}

func (s *Store) countMutation(op, result string) {
	s.mutations.Add(1,
		observability.L("store", s.name),
		observability.L("op", op),
		observability.L("result", result),
	)
}
