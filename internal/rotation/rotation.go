// Package rotation regenerates host key fingerprints on a schedule and
// reports keys that were added, removed or replaced since the last pass.
//
// Every pass is persisted as a database.FingerprintSnapshot. The previous
// snapshot is the baseline for the next comparison, so changes are detected
// across restarts as well.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/pftpd/pftpd-core/internal/audit"
	"github.com/pftpd/pftpd-core/internal/database"
	"github.com/pftpd/pftpd-core/internal/fingerprint"
	"github.com/pftpd/pftpd-core/internal/hostkeys"
	"github.com/pftpd/pftpd-core/internal/logutil"
)

// DefaultSchedule runs a check every hour.
const DefaultSchedule = "@every 1h"

// Config configures a Watcher.
type Config struct {
	// Schedule is a cron spec or descriptor such as "@every 30m".
	Schedule string
	// SnapshotsToKeep bounds the stored snapshot history. Zero keeps all.
	SnapshotsToKeep int
	Recorder        audit.Recorder
}

// Change describes one algorithm whose key differs from the previous pass.
type Change struct {
	Algorithm hostkeys.Algorithm
	Event     string // audit.EventKeyAdded, EventKeyRemoved or EventFingerprintChanged
	Old       string // SHA-256 OpenSSH fingerprint, empty when added
	New       string // SHA-256 OpenSSH fingerprint, empty when removed
}

// Result is the outcome of one Check.
type Result struct {
	Snapshot *fingerprint.Snapshot
	// Baseline is true when no earlier snapshot existed to compare with.
	Baseline bool
	Changes  []Change
}

// Watcher regenerates a registry from a key store.
type Watcher struct {
	registry *fingerprint.Registry
	store    hostkeys.KeyStore
	cfg      Config

	mu   sync.Mutex
	cron *cron.Cron
	done chan struct{}
}

// NewWatcher validates cfg and returns a stopped Watcher.
func NewWatcher(registry *fingerprint.Registry, store hostkeys.KeyStore, cfg Config) (*Watcher, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse rotation schedule %q: %w", cfg.Schedule, err)
	}
	return &Watcher{registry: registry, store: store, cfg: cfg}, nil
}

// Check regenerates the registry, compares the result with the last stored
// snapshot and stores the new one.
func (w *Watcher) Check(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev, err := database.LatestSnapshot()
	if err != nil {
		return nil, err
	}

	snap := w.registry.Generate(w.store)
	res := &Result{Snapshot: snap, Baseline: prev == nil}
	if prev != nil {
		res.Changes = diff(baseline(prev), current(snap))
	}

	if err := database.SaveSnapshot(toModel(snap)); err != nil {
		return res, fmt.Errorf("save snapshot: %w", err)
	}
	if w.cfg.SnapshotsToKeep > 0 {
		if _, err := database.PruneSnapshots(w.cfg.SnapshotsToKeep); err != nil {
			log.Printf("[rotation] %v", err)
		}
	}

	w.report(res)
	return res, nil
}

func (w *Watcher) report(res *Result) {
	snap := res.Snapshot
	audit.Record(w.cfg.Recorder, audit.EventFingerprintsGenerated, snap.ID.String(),
		fmt.Sprintf("present=%d absent=%d", len(snap.Records), len(snap.Absent)))

	for _, alg := range hostkeys.All() {
		reason, ok := snap.Absent[alg]
		if !ok || errors.Is(reason, hostkeys.ErrKeyNotFound) {
			continue
		}
		// the key exists but cannot be used
		log.Printf("[rotation] WARNING: %s host key unusable: %s", alg, logutil.SanitizeForLog(reason.Err.Error()))
		audit.Record(w.cfg.Recorder, audit.EventKeyAbsent, alg.String(), reason.Err.Error())
	}

	for _, c := range res.Changes {
		log.Printf("[rotation] %s %s: %s -> %s", c.Event, c.Algorithm, orDash(c.Old), orDash(c.New))
		audit.Record(w.cfg.Recorder, c.Event, c.Algorithm.String(),
			fmt.Sprintf("old=%s new=%s", orDash(c.Old), orDash(c.New)))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Start runs Check on the configured schedule until ctx is done or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return errors.New("rotation watcher already started")
	}

	// a slow check is skipped rather than overlapped by the next tick
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(w.cfg.Schedule, func() {
		if _, err := w.Check(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[rotation] check failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule rotation check: %w", err)
	}
	if p, ok := w.cfg.Recorder.(purger); ok {
		if _, err := c.AddFunc("@daily", func() { purgeAudit(p) }); err != nil {
			return fmt.Errorf("schedule audit purge: %w", err)
		}
	}
	done := make(chan struct{})
	w.cron = c
	w.done = done
	c.Start()
	log.Printf("[rotation] watcher started (schedule %q)", w.cfg.Schedule)

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-done:
		}
	}()
	return nil
}

type purger interface {
	PurgeOlderThan(days int) (int64, error)
	RetentionDays() int
}

func purgeAudit(p purger) {
	if _, err := p.PurgeOlderThan(p.RetentionDays()); err != nil {
		log.Printf("[rotation] audit purge: %v", err)
	}
}

// Stop halts the schedule and waits for a running check to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	c, done := w.cron, w.done
	w.cron, w.done = nil, nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	close(done)
	<-c.Stop().Done()
	log.Printf("[rotation] watcher stopped")
}

// sha256Of maps algorithm names to SHA-256 OpenSSH fingerprints.
type sha256Of map[string]string

func baseline(prev *database.FingerprintSnapshot) sha256Of {
	m := sha256Of{}
	for _, e := range prev.Entries {
		if e.HashKind == fingerprint.SHA256.String() {
			m[e.Algorithm] = "SHA256:" + e.Base64
		}
	}
	return m
}

func current(snap *fingerprint.Snapshot) sha256Of {
	m := sha256Of{}
	for alg := range snap.Records {
		if res, ok := snap.Fingerprint(alg, fingerprint.SHA256); ok {
			m[alg.String()] = res.OpenSSH(fingerprint.SHA256)
		}
	}
	return m
}

func diff(old, cur sha256Of) []Change {
	var changes []Change
	for _, alg := range hostkeys.All() {
		o, hadOld := old[alg.String()]
		n, hasNew := cur[alg.String()]
		switch {
		case hadOld && hasNew && o != n:
			changes = append(changes, Change{Algorithm: alg, Event: audit.EventFingerprintChanged, Old: o, New: n})
		case !hadOld && hasNew:
			changes = append(changes, Change{Algorithm: alg, Event: audit.EventKeyAdded, New: n})
		case hadOld && !hasNew:
			changes = append(changes, Change{Algorithm: alg, Event: audit.EventKeyRemoved, Old: o})
		}
	}
	return changes
}

func toModel(snap *fingerprint.Snapshot) *database.FingerprintSnapshot {
	m := &database.FingerprintSnapshot{
		ID:          snap.ID.String(),
		GeneratedAt: snap.GeneratedAt.UTC(),
		Present:     snap.Present(),
	}
	for _, alg := range snap.Algorithms() {
		for _, kind := range fingerprint.HashKinds() {
			res, ok := snap.Fingerprint(alg, kind)
			if !ok {
				continue
			}
			m.Entries = append(m.Entries, database.FingerprintEntry{
				SnapshotID: m.ID,
				Algorithm:  alg.String(),
				HashKind:   kind.String(),
				Hex:        strings.ReplaceAll(res.Hex, "\n", ""),
				Base64:     res.Base64,
			})
		}
	}
	return m
}
