package rotation

import (
	"context"
	"os"
	"io"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pftpd/pftpd-core/internal/audit"
	"github.com/pftpd/pftpd-core/internal/database"
	"github.com/pftpd/pftpd-core/internal/fingerprint"
	"github.com/pftpd/pftpd-core/internal/hostkeys"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	var err error
	database.DB, err = gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	if err := database.DB.AutoMigrate(database.Models...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	t.Cleanup(func() { database.Close() })
}

type event struct{ typ, subject, details string }

type fakeRecorder struct {
	mu     sync.Mutex
	events []event
}

func (r *fakeRecorder) Record(typ, subject, details string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{typ, subject, details})
	return nil
}

func (r *fakeRecorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.typ == typ {
			n++
		}
	}
	return n
}

func writeKey(t *testing.T, store *hostkeys.DirStore, alg hostkeys.Algorithm) {
	t.Helper()
	pub, priv, err := hostkeys.GenerateKeyPair(alg)
	if err != nil {
		t.Fatalf("generate %s: %v", alg, err)
	}
	if err := store.SaveKeyPair(alg, priv, pub); err != nil {
		t.Fatalf("save %s: %v", alg, err)
	}
}

func newWatcher(t *testing.T, store hostkeys.KeyStore, rec audit.Recorder) *Watcher {
	t.Helper()
	w, err := NewWatcher(fingerprint.NewRegistry(), store, Config{Recorder: rec, SnapshotsToKeep: 3})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w
}

func TestNewWatcher_InvalidSchedule(t *testing.T) {
	_, err := NewWatcher(fingerprint.NewRegistry(), hostkeys.NewDirStore(t.TempDir()), Config{Schedule: "every now and then"})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestCheck_FirstPassIsBaseline(t *testing.T) {
	setupTestDB(t)
	store := hostkeys.NewDirStore(t.TempDir())
	writeKey(t, store, hostkeys.Ed25519)
	rec := &fakeRecorder{}

	res, err := newWatcher(t, store, rec).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Baseline {
		t.Error("first check should be a baseline")
	}
	if len(res.Changes) != 0 {
		t.Errorf("baseline should report no changes, got %+v", res.Changes)
	}

	latest, err := database.LatestSnapshot()
	if err != nil || latest == nil {
		t.Fatalf("LatestSnapshot: %v, %v", latest, err)
	}
	if latest.ID != res.Snapshot.ID.String() {
		t.Errorf("stored snapshot %s, want %s", latest.ID, res.Snapshot.ID)
	}
	if len(latest.Entries) != len(fingerprint.HashKinds()) {
		t.Errorf("expected %d entries, got %d", len(fingerprint.HashKinds()), len(latest.Entries))
	}
	if rec.count(audit.EventFingerprintsGenerated) != 1 {
		t.Errorf("expected one %s event", audit.EventFingerprintsGenerated)
	}
}

func TestCheck_DetectsChanges(t *testing.T) {
	setupTestDB(t)
	store := hostkeys.NewDirStore(t.TempDir())
	writeKey(t, store, hostkeys.Ed25519)
	writeKey(t, store, hostkeys.ECDSA384)
	rec := &fakeRecorder{}
	w := newWatcher(t, store, rec)
	ctx := context.Background()

	if _, err := w.Check(ctx); err != nil {
		t.Fatalf("baseline Check: %v", err)
	}

	// Unchanged keys produce no events.
	res, err := w.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Baseline || len(res.Changes) != 0 {
		t.Fatalf("expected no changes, got baseline=%v %+v", res.Baseline, res.Changes)
	}

	writeKey(t, store, hostkeys.Ed25519)
	writeKey(t, store, hostkeys.ECDSA256)
	os.Remove(filepath.Join(store.Dir, hostkeys.ECDSA384.PublicKeyFile()))

	res, err = w.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	want := map[hostkeys.Algorithm]string{
		hostkeys.ECDSA384: audit.EventKeyRemoved,
		hostkeys.ECDSA256: audit.EventKeyAdded,
		hostkeys.Ed25519:  audit.EventFingerprintChanged,
	}
	if len(res.Changes) != len(want) {
		t.Fatalf("expected %d changes, got %+v", len(want), res.Changes)
	}
	for _, c := range res.Changes {
		if want[c.Algorithm] != c.Event {
			t.Errorf("%s: event %q, want %q", c.Algorithm, c.Event, want[c.Algorithm])
		}
	}
	// Catalog order.
	if res.Changes[0].Algorithm != hostkeys.ECDSA256 || res.Changes[2].Algorithm != hostkeys.Ed25519 {
		t.Errorf("changes not in catalog order: %+v", res.Changes)
	}
	for _, typ := range []string{audit.EventKeyRemoved, audit.EventKeyAdded, audit.EventFingerprintChanged} {
		if rec.count(typ) != 1 {
			t.Errorf("expected one %s event, got %d", typ, rec.count(typ))
		}
	}
}

func TestCheck_BrokenKeyIsAudited(t *testing.T) {
	setupTestDB(t)
	store := hostkeys.NewDirStore(t.TempDir())
	writeKey(t, store, hostkeys.Ed25519)
	if err := os.WriteFile(filepath.Join(store.Dir, hostkeys.RSA.PublicKeyFile()), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &fakeRecorder{}

	res, err := newWatcher(t, store, rec).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, ok := res.Snapshot.Absent[hostkeys.RSA]; !ok {
		t.Fatal("expected rsa to be absent")
	}
	// Only the unreadable key is reported, not the missing ones.
	if n := rec.count(audit.EventKeyAbsent); n != 1 {
		t.Errorf("expected one %s event, got %d", audit.EventKeyAbsent, n)
	}
}

func TestCheck_PrunesHistory(t *testing.T) {
	setupTestDB(t)
	store := hostkeys.NewDirStore(t.TempDir())
	writeKey(t, store, hostkeys.Ed25519)
	w := newWatcher(t, store, nil)

	for i := 0; i < 5; i++ {
		if _, err := w.Check(context.Background()); err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
	}
	var count int64
	database.DB.Model(&database.FingerprintSnapshot{}).Count(&count)
	if count != 3 {
		t.Errorf("expected 3 snapshots kept, got %d", count)
	}
}

func TestCheck_CanceledContext(t *testing.T) {
	setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newWatcher(t, hostkeys.NewDirStore(t.TempDir()), nil).Check(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestStart_RunsOnSchedule(t *testing.T) {
	setupTestDB(t)
	store := hostkeys.NewDirStore(t.TempDir())
	writeKey(t, store, hostkeys.Ed25519)
	reg := fingerprint.NewRegistry()
	w, err := NewWatcher(reg, store, Config{Schedule: "@every 1s"})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()
	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !reg.IsGenerated() {
		if time.Now().After(deadline) {
			t.Fatal("scheduled check did not run")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !reg.IsPresent() {
		t.Error("expected ed25519 key to be present")
	}
}

func TestStop_Idempotent(t *testing.T) {
	w := newWatcher(t, hostkeys.NewDirStore(t.TempDir()), nil)
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestStartStop_DoesNotLeakGoroutines(t *testing.T) {
	w := newWatcher(t, hostkeys.NewDirStore(t.TempDir()), nil)
	ctx := context.Background() // never canceled
	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		if err := w.Start(ctx); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		w.Stop()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines grew from %d to %d over Start/Stop cycles", before, runtime.NumGoroutine())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// blockingStore blocks the first OpenPublicKey call until release is closed.
type blockingStore struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) OpenPublicKey(hostkeys.Algorithm) (io.ReadCloser, error) {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.started)
		<-s.release
	}
	return nil, hostkeys.ErrKeyNotFound
}

func (s *blockingStore) OpenPrivateKey(hostkeys.Algorithm) (io.ReadCloser, error) {
	return nil, hostkeys.ErrKeyNotFound
}

func TestStart_SkipsTicksWhileCheckRuns(t *testing.T) {
	setupTestDB(t)
	store := &blockingStore{started: make(chan struct{}), release: make(chan struct{})}
	rec := &fakeRecorder{}
	w, err := NewWatcher(fingerprint.NewRegistry(hostkeys.Ed25519), store, Config{Schedule: "@every 1s", Recorder: rec})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-store.started:
	case <-time.After(5 * time.Second):
		w.Stop()
		t.Fatal("scheduled check did not run")
	}
	// let two more ticks fire while the first check is blocked
	time.Sleep(2500 * time.Millisecond)
	close(store.release)
	w.Stop()

	if n := rec.count(audit.EventFingerprintsGenerated); n != 1 {
		t.Errorf("expected 1 completed check, got %d", n)
	}
}
