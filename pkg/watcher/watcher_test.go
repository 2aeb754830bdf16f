package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(80 * time.Millisecond)
	if called.Load() {
		t.Error("expected no call after cancel")
	}
	if NewDebouncer(0).Duration() != DefaultDebounceDuration {
		t.Error("expected default duration for zero")
	}
}

// startWatcher writes content to name in a temp dir and starts a fast
// watcher on it.
func startWatcher(t *testing.T, name string, poll bool, extra ...WatcherOption) (*Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(`{"kind":"node","id":"a","name":"A"}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	opts := append(ForPath(path),
		WithDebounceDuration(20*time.Millisecond),
		WithPollInterval(30*time.Millisecond),
		WithForcePoll(poll),
	)
	w, err := NewWatcher(path, append(opts, extra...)...)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	// Let the first poll tick record the initial state on coarse mtime
	// filesystems.
	time.Sleep(50 * time.Millisecond)
	return w, path
}

func waitChange(t *testing.T, w *Watcher, what string) {
	t.Helper()
	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change notification: %s", what)
	}
}

func TestWatcherReportsExportRewrite(t *testing.T) {
	for _, poll := range []bool{false, true} {
		w, path := startWatcher(t, "plant.jsonl", poll)
		if w.IsPolling() != poll {
			t.Errorf("expected polling=%v, got %v", poll, w.IsPolling())
		}
		content := `{"kind":"node","id":"a","name":"A"}` + "\n" + `{"kind":"node","id":"b","name":"B","parent":"a"}` + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		waitChange(t, w, "rewrite")
		if w.Changes() < 1 {
			t.Errorf("polling=%v: expected change counted, got %d", poll, w.Changes())
		}
	}
}

func TestWatcherReplaceByRename(t *testing.T) {
	w, path := startWatcher(t, "plant.jsonl", false)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(`{"kind":"node","id":"z","name":"Z"}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	waitChange(t, w, "rename over the export")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	w, path := startWatcher(t, "plant.jsonl", false)
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.Changed():
		t.Fatal("expected no change for an unrelated file")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherSQLiteCompanion(t *testing.T) {
	w, path := startWatcher(t, "plant.db", true)
	if err := os.WriteFile(path+"-wal", []byte("wal frames"), 0644); err != nil {
		t.Fatal(err)
	}
	waitChange(t, w, "write to -wal")
}

func TestWatcherReportsRemoval(t *testing.T) {
	errs := make(chan error, 4)
	_, path := startWatcher(t, "plant.jsonl", true, WithOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, ErrFileRemoved) {
			t.Errorf("expected ErrFileRemoved, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected removal to be reported")
	}
}

func TestWatcherStartStop(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "later.jsonl"), WithForcePoll(true))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("expected missing file to be accepted, got %v", err)
	}
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	w.Stop()
	w.Stop()
	if w.IsStarted() {
		t.Error("expected stopped watcher")
	}
	if err := w.Start(); err != nil {
		t.Errorf("expected restart to work, got %v", err)
	}
	w.Stop()
	if !filepath.IsAbs(w.Path()) {
		t.Errorf("expected absolute path, got %s", w.Path())
	}
}

func TestEnvForcePoll(t *testing.T) {
	t.Setenv(ForcePollEnvVar, "yes")
	w, _ := startWatcher(t, "plant.jsonl", false)
	if !w.IsPolling() {
		t.Error("expected env var to force polling")
	}
	t.Setenv(ForcePollEnvVar, "off")
	if envBool(ForcePollEnvVar) {
		t.Error("expected off to be false")
	}
}

func TestForPath(t *testing.T) {
	if len(ForPath("/data/plant.jsonl")) != 0 {
		t.Error("expected no extra options for jsonl exports")
	}
	if len(ForPath("/data/plant.SQLITE")) != 1 {
		t.Error("expected companion option for sqlite databases")
	}
}

func TestWatcherDoneClosedOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.jsonl")
	w, err := NewWatcher(path, WithForcePoll(true))
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-w.Done():
	default:
		t.Error("expected Done closed before Start")
	}

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	done := w.Done()
	select {
	case <-done:
		t.Fatal("expected Done open while running")
	default:
	}

	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Done closed after Stop")
	}
	w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer w.Stop()
	select {
	case <-w.Done():
		t.Error("expected a fresh Done channel after restart")
	default:
	}
}
