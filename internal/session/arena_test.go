package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestArenaLifecycle(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	var evicted []string
	a := NewArena[string](time.Minute, WithClock[string](c.now), WithEvict(func(id, v string) {
		evicted = append(evicted, v)
	}))

	id, exp := a.Put("first")
	if !exp.Equal(c.t.Add(time.Minute)) {
		t.Fatalf("expires = %v", exp)
	}
	if v, err := a.Get(id); err != nil || v != "first" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if _, err := a.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}

	taken, err := a.Take(id)
	if err != nil || taken != "first" || a.Len() != 0 {
		t.Fatalf("Take = %q, %v, len %d", taken, err, a.Len())
	}
	if len(evicted) != 0 {
		t.Fatal("take must not evict")
	}

	id2, _ := a.Put("second")
	if !a.Delete(id2) || a.Delete(id2) {
		t.Fatal("delete should succeed once")
	}
	if len(evicted) != 1 || evicted[0] != "second" {
		t.Fatalf("evicted = %v", evicted)
	}
}

func TestArenaExpiry(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	a := NewArena[int](time.Minute, WithClock[int](c.now))
	old, _ := a.Put(1)
	c.t = c.t.Add(30 * time.Second)
	fresh, _ := a.Put(2)
	c.t = c.t.Add(31 * time.Second)

	if _, err := a.Get(old); !errors.Is(err, ErrNotFound) {
		t.Fatal("expired session still readable")
	}
	if n := a.Sweep(c.t); n != 1 {
		t.Fatalf("swept %d", n)
	}
	if _, err := a.Get(fresh); err != nil {
		t.Fatalf("fresh session: %v", err)
	}
}

func TestSweepRemovesBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.docx")
	if err := os.WriteFile(path, []byte("doc"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := &clock{t: time.Unix(0, 0)}
	a := NewArena[string](time.Minute, WithClock[string](c.now), WithEvict(func(_ string, p string) {
		os.Remove(p)
	}))
	a.Put(path)
	a.Sweep(c.t.Add(2 * time.Minute))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("temp file survived eviction: %v", err)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	a := NewArena[int](time.Millisecond)
	a.Put(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, time.Millisecond)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for a.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never evicted")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
