package registry

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_MissingFile_SeedsDefaults(t *testing.T) {
	t.Parallel()

	r := Load(filepath.Join(t.TempDir(), "targets.json"))
	want := []string{"1.1.1.1", "8.8.4.4", "8.8.8.8"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("targets=%v", got)
	}
}

func TestLoad_CorruptFile_SeedsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r := Load(path)
	if got := r.List(); len(got) != 3 {
		t.Fatalf("targets=%v", got)
	}
}

func TestLoad_EmptyArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.json")
	if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r := Load(path)
	if got := r.List(); len(got) != 0 {
		t.Fatalf("targets=%v", got)
	}
}

func TestHas(t *testing.T) {
	t.Parallel()

	r := Load(filepath.Join(t.TempDir(), "targets.json"))
	if !r.Has("8.8.8.8") {
		t.Fatalf("seed target missing")
	}
	if r.Has("203.0.113.1") {
		t.Fatalf("unexpected member")
	}
}

func TestAddRemove_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.json")
	r := Load(path)

	if err := r.Add("9.9.9.9"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := r.List(); !contains(got, "9.9.9.9") {
		t.Fatalf("targets=%v", got)
	}

	// Persisted sorted and reloadable.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !sortedStrings(list) || !contains(list, "9.9.9.9") {
		t.Fatalf("persisted=%v", list)
	}

	reloaded := Load(path)
	if !reflect.DeepEqual(reloaded.List(), r.List()) {
		t.Fatalf("reloaded=%v live=%v", reloaded.List(), r.List())
	}

	if err := r.Remove("9.9.9.9"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := r.List(); contains(got, "9.9.9.9") {
		t.Fatalf("targets=%v", got)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	t.Parallel()

	r := Load(filepath.Join(t.TempDir(), "targets.json"))
	before := r.List()

	if err := r.Add("8.8.8.8"); !errors.Is(err, ErrExists) {
		t.Fatalf("err=%v", err)
	}
	if got := r.List(); !reflect.DeepEqual(got, before) {
		t.Fatalf("registry changed: %v", got)
	}
}

func TestRemove_Absent(t *testing.T) {
	t.Parallel()

	r := Load(filepath.Join(t.TempDir(), "targets.json"))
	before := r.List()

	if err := r.Remove("203.0.113.1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if got := r.List(); !reflect.DeepEqual(got, before) {
		t.Fatalf("registry changed: %v", got)
	}
}

func TestRename(t *testing.T) {
	t.Parallel()

	r := Load(filepath.Join(t.TempDir(), "targets.json"))

	if err := r.Rename("8.8.8.8", "9.9.9.9"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got := r.List()
	if contains(got, "8.8.8.8") || !contains(got, "9.9.9.9") {
		t.Fatalf("targets=%v", got)
	}

	if err := r.Rename("203.0.113.1", "203.0.113.2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestRename_CollisionCollapses(t *testing.T) {
	t.Parallel()

	r := Load(filepath.Join(t.TempDir(), "targets.json"))

	// Renaming onto an existing address removes the old entry and keeps the
	// existing one.
	if err := r.Rename("8.8.8.8", "1.1.1.1"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got := r.List()
	if contains(got, "8.8.8.8") {
		t.Fatalf("old target still present: %v", got)
	}
	if !contains(got, "1.1.1.1") {
		t.Fatalf("existing target lost: %v", got)
	}
	if len(got) != 2 {
		t.Fatalf("targets=%v", got)
	}
}

func TestAdd_PersistFailure_KeepsMutation(t *testing.T) {
	t.Parallel()

	// Parent "directory" is a regular file, so the persist write cannot
	// succeed no matter the permissions.
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := Load(filepath.Join(blocker, "sub", "targets.json"))
	err := r.Add("9.9.9.9")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("err=%v", err)
	}
	if got := r.List(); !contains(got, "9.9.9.9") {
		t.Fatalf("mutation rolled back: %v", got)
	}
}

func TestWatch_ReloadsOutOfBandEdit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.json")
	r := Load(path)
	if err := r.Add("9.9.9.9"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	removedCh := make(chan string, 8)
	go func() {
		_ = r.Watch(ctx, func(target string) { removedCh <- target })
	}()

	// Let the watcher install before editing the file.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`["1.1.1.1","9.9.9.9"]`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		got := r.List()
		if reflect.DeepEqual(got, []string{"1.1.1.1", "9.9.9.9"}) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("reload not observed, targets=%v", got)
		case <-time.After(20 * time.Millisecond):
		}
	}

	removed := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(removed) < 2 {
		select {
		case target := <-removedCh:
			removed[target] = true
		case <-timeout:
			t.Fatalf("removed callbacks=%v", removed)
		}
	}
	if !removed["8.8.8.8"] || !removed["8.8.4.4"] {
		t.Fatalf("removed=%v", removed)
	}
}

func TestWatch_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	// Fresh install: the state directory only appears with the first persist,
	// but the watch must come up anyway and catch the file when it lands.
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "targets.json")
	r := Load(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() { watchErr <- r.Watch(ctx, nil) }()

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-watchErr:
		t.Fatalf("watch exited: %v", err)
	default:
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("state dir: %v", err)
	}

	if err := os.WriteFile(path, []byte(`["203.0.113.1"]`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		got := r.List()
		if reflect.DeepEqual(got, []string{"203.0.113.1"}) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("reload not observed, targets=%v", got)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

func sortedStrings(list []string) bool {
	for i := 1; i < len(list); i++ {
		if list[i-1] > list[i] {
			return false
		}
	}
	return true
}
