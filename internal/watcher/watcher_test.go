package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() WatcherConfig {
	cfg := DefaultWatcherConfig()
	cfg.DebounceWindow = 50 * time.Millisecond
	return cfg
}

func TestDebouncerCoalescesPerPath(t *testing.T) {
	var mu sync.Mutex
	var batches [][]FileEvent

	d := NewDebouncer(30*time.Millisecond, 10, func(events []FileEvent) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, events)
	})

	d.Add(FileEvent{Path: "/specs/es.yaml", Type: EventCreate})
	d.Add(FileEvent{Path: "/specs/es.yaml", Type: EventModify})
	d.Add(FileEvent{Path: "/specs/kibana.json", Type: EventModify})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches[0], 2)
	assert.Equal(t, "/specs/es.yaml", batches[0][0].Path)
	assert.Equal(t, EventModify, batches[0][0].Type, "last event wins")
}

func TestDebouncerFlushesFullBatch(t *testing.T) {
	flushed := make(chan []FileEvent, 1)
	d := NewDebouncer(time.Hour, 2, func(events []FileEvent) { flushed <- events })

	d.Add(FileEvent{Path: "a"})
	d.Add(FileEvent{Path: "b"})

	select {
	case events := <-flushed:
		assert.Len(t, events, 2)
	case <-time.After(time.Second):
		t.Fatal("batch was not flushed")
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	called := make(chan struct{}, 1)
	d := NewDebouncer(20*time.Millisecond, 10, func([]FileEvent) { called <- struct{}{} })

	d.Add(FileEvent{Path: "a"})
	d.Stop()
	d.Add(FileEvent{Path: "b"})

	select {
	case <-called:
		t.Fatal("flush after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "elasticsearch.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(spec, []byte("openapi: 3.0.0\n"), 0644))

	w, err := New(testConfig())
	require.NoError(t, err)
	defer w.Stop()

	events := make(chan FileEvent, 8)
	require.NoError(t, w.Watch(spec, func(e FileEvent) { events <- e }))
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(spec, []byte("openapi: 3.1.0\n"), 0644))

	select {
	case e := <-events:
		abs, _ := filepath.Abs(spec)
		assert.Equal(t, filepath.Clean(abs), e.Path)
		assert.False(t, e.Gone())
	case <-time.After(3 * time.Second):
		t.Fatal("no event for watched spec")
	}
}

func TestWatcherSurvivesAtomicSave(t *testing.T) {
	dir := t.TempDir()
	spec := filepath.Join(dir, "kibana.json")
	require.NoError(t, os.WriteFile(spec, []byte(`{}`), 0644))

	w, err := New(testConfig())
	require.NoError(t, err)
	defer w.Stop()

	events := make(chan FileEvent, 8)
	require.NoError(t, w.Watch(spec, func(e FileEvent) { events <- e }))
	require.NoError(t, w.Start(context.Background()))

	tmp := filepath.Join(dir, "kibana.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"openapi":"3.0.0"}`), 0644))
	require.NoError(t, os.Rename(tmp, spec))

	select {
	case e := <-events:
		assert.False(t, e.Gone())
	case <-time.After(3 * time.Second):
		t.Fatal("no event after rename over watched spec")
	}
}

func TestWatcherUnwatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")

	w, err := New(testConfig())
	require.NoError(t, err)
	defer w.Stop()

	noop := func(FileEvent) {}
	require.NoError(t, w.Watch(a, noop))
	require.NoError(t, w.Watch(b, noop))
	require.NoError(t, w.Watch(a, noop))
	assert.Len(t, w.Files(), 2)

	w.Unwatch(a)
	w.Unwatch(a)
	assert.Len(t, w.Files(), 1)
	assert.Equal(t, 1, w.dirs[filepath.Clean(dir)])
}
