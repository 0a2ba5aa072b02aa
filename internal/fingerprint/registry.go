package fingerprint

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pftpd/pftpd-core/internal/hostkeys"
)

// Record holds every hash kind's result for one algorithm.
type Record map[HashKind]Result

// KeyUnavailableError explains why an algorithm has no record.
type KeyUnavailableError struct {
	Algorithm hostkeys.Algorithm
	Err       error
}

func (e *KeyUnavailableError) Error() string {
	return fmt.Sprintf("%s host key unavailable: %v", e.Algorithm, e.Err)
}

func (e *KeyUnavailableError) Unwrap() error { return e.Err }

// Snapshot is the immutable outcome of one generation pass.
type Snapshot struct {
	ID          uuid.UUID
	GeneratedAt time.Time
	Records     map[hostkeys.Algorithm]Record
	Absent      map[hostkeys.Algorithm]*KeyUnavailableError
}

// Present reports whether at least one algorithm produced a record.
func (s *Snapshot) Present() bool {
	return len(s.Records) > 0
}

// Fingerprint returns the result for alg and kind.
func (s *Snapshot) Fingerprint(alg hostkeys.Algorithm, kind HashKind) (Result, bool) {
	rec, ok := s.Records[alg]
	if !ok {
		return Result{}, false
	}
	res, ok := rec[kind]
	return res, ok
}

// Algorithms returns the algorithms with a record, in catalog order.
func (s *Snapshot) Algorithms() []hostkeys.Algorithm {
	algs := make([]hostkeys.Algorithm, 0, len(s.Records))
	for alg := range s.Records {
		algs = append(algs, alg)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

// Registry computes and caches host key fingerprints. The zero value is not
// usable; create one with NewRegistry.
type Registry struct {
	algs []hostkeys.Algorithm
	now  func() time.Time

	mu   sync.Mutex // serializes Generate
	snap atomic.Pointer[Snapshot]
}

// NewRegistry returns a registry over algs, or over the whole catalog when
// none are given.
func NewRegistry(algs ...hostkeys.Algorithm) *Registry {
	if len(algs) == 0 {
		algs = hostkeys.All()
	}
	return &Registry{
		algs: append([]hostkeys.Algorithm(nil), algs...),
		now:  time.Now,
	}
}

// Generate recomputes the fingerprints of every algorithm from store and
// replaces the previous snapshot. It never fails; algorithms whose key cannot
// be used are listed in the returned snapshot's Absent map.
func (r *Registry) Generate(store hostkeys.KeyStore) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &Snapshot{
		ID:          uuid.New(),
		GeneratedAt: r.now(),
		Records:     make(map[hostkeys.Algorithm]Record, len(r.algs)),
		Absent:      make(map[hostkeys.Algorithm]*KeyUnavailableError),
	}

	for _, alg := range r.algs {
		rec, err := loadRecord(store, alg)
		if err != nil {
			snap.Absent[alg] = &KeyUnavailableError{Algorithm: alg, Err: err}
			log.Printf("[fingerprint] no usable %s host key: %v", alg, err)
			continue
		}
		snap.Records[alg] = rec
	}

	r.snap.Store(snap)
	log.Printf("[fingerprint] generated %d of %d host key fingerprints (snapshot %s)",
		len(snap.Records), len(r.algs), snap.ID)
	return snap
}

// loadRecord reads, encodes and hashes one algorithm's public key. A panic in
// the store or parser is converted into an error so that one algorithm
// cannot abort the pass.
func loadRecord(store hostkeys.KeyStore, alg hostkeys.Algorithm) (rec Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, fmt.Errorf("load key: panic: %v", p)
		}
	}()

	rc, err := store.OpenPublicKey(alg)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	key, err := alg.ReadPublicKey(rc)
	if err != nil {
		return nil, err
	}
	encoded := alg.Encode(key)

	rec = make(Record, len(hashKinds))
	for _, kind := range HashKinds() {
		res, err := Compute(encoded, kind)
		if err != nil {
			return nil, err
		}
		rec[kind] = res
	}
	return rec, nil
}

// Snapshot returns the current snapshot, or nil before the first Generate.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Fingerprint returns the current result for alg and kind.
func (r *Registry) Fingerprint(alg hostkeys.Algorithm, kind HashKind) (Result, bool) {
	snap := r.snap.Load()
	if snap == nil {
		return Result{}, false
	}
	return snap.Fingerprint(alg, kind)
}

// IsGenerated reports whether Generate has run since creation or the last
// Reset, regardless of whether any key was found.
func (r *Registry) IsGenerated() bool {
	return r.snap.Load() != nil
}

// IsPresent reports whether the current snapshot holds at least one record.
func (r *Registry) IsPresent() bool {
	snap := r.snap.Load()
	return snap != nil && snap.Present()
}

// Reset discards the current snapshot.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(nil)
}
