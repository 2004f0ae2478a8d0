package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterdachuan/displaz/pkg/geometry/pointcloud"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.xyz")
	if err := os.WriteFile(path, []byte("1 2 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := pointcloud.New()
	if err := p.LoadFile(context.Background(), path, 100); err != nil {
		t.Fatal(err)
	}
	if p.PointCount() != 1 {
		t.Fatalf("point count = %d, want 1", p.PointCount())
	}

	reloaded := make(chan error, 4)
	w, err := New(p, 100,
		WithDebounce(50*time.Millisecond),
		WithReloadCallback(func(err error) { reloaded <- err }))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte("1 2 3\n4 5 6\n7 8 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
	if p.PointCount() != 3 {
		t.Errorf("point count after reload = %d, want 3", p.PointCount())
	}
}

func TestWatcherRequiresLoadedGeometry(t *testing.T) {
	if _, err := New(pointcloud.New(), 100); err == nil {
		t.Fatal("expected error for unloaded geometry")
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.xyz")
	if err := os.WriteFile(path, []byte("1 2 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := pointcloud.New()
	if err := p.LoadFile(context.Background(), path, 100); err != nil {
		t.Fatal(err)
	}
	w, err := New(p, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
