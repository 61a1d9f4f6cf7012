package visualization

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}

// TestHostLifecycle verifies sessions are created, closed and shut down by the loop
func TestHostLifecycle(t *testing.T) {
	h := NewHost(8, DefaultOptions(), zerolog.Nop())
	created := make(chan string, 4)
	closed := make(chan string, 4)
	h.OnCreate(func(v *Viewer) { created <- v.ID() })
	h.OnClose(func(id string) { closed <- id })

	errc := make(chan error, 1)
	go func() { errc <- h.Run(context.Background()) }()

	a := rampArray(t, 4, 5, 3)
	first, err := h.Open(a, "first")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	second, err := h.Open(a, "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if first == second {
		t.Error("Expected distinct session IDs for the same array")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-created:
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for session creation")
		}
	}
	if h.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", h.Len())
	}
	v, ok := h.Get(first)
	if !ok || v.Title() != "first" {
		t.Fatalf("Expected session %s titled first", first)
	}

	if err := h.Submit(CloseViewer{ID: first}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case id := <-closed:
		if id != first {
			t.Errorf("Expected %s closed, got %s", first, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for close")
	}
	if _, err := v.State(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected closed viewer, got %v", err)
	}

	if err := h.Submit(Shutdown{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Expected nil from Run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for shutdown")
	}
	<-h.Done()
	if h.Len() != 0 {
		t.Errorf("Expected all sessions closed, got %d", h.Len())
	}
	if _, err := h.Open(a, ""); !errors.Is(err, ErrHostClosed) {
		t.Errorf("Expected ErrHostClosed, got %v", err)
	}
}

// TestHostQueueFull verifies Submit never blocks on a full queue
func TestHostQueueFull(t *testing.T) {
	h := NewHost(1, DefaultOptions(), zerolog.Nop())
	a := rampArray(t, 2, 2)
	if _, err := h.Open(a, ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := h.Open(a, ""); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

// TestHostSubmitDuringShutdown verifies that every command accepted while the
// host shuts down is drained rather than stranded in the queue
func TestHostSubmitDuringShutdown(t *testing.T) {
	a := rampArray(t, 2, 2)
	for i := 0; i < 20; i++ {
		h := NewHost(64, DefaultOptions(), zerolog.Nop())
		go h.Run(context.Background())

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := h.Open(a, "")
					if errors.Is(err, ErrHostClosed) {
						return
					}
				}
			}()
		}
		for h.Submit(Shutdown{}) != nil {
		}
		<-h.Done()
		wg.Wait()

		if n := len(h.cmds); n != 0 {
			t.Fatalf("Iteration %d: %d accepted commands left in the queue", i, n)
		}
		if h.Len() != 0 {
			t.Fatalf("Iteration %d: expected no sessions after shutdown, got %d", i, h.Len())
		}
		if err := h.Submit(CloseViewer{ID: "x"}); !errors.Is(err, ErrHostClosed) {
			t.Fatalf("Expected ErrHostClosed, got %v", err)
		}
	}
}

// TestHostContextCancel verifies cancellation discards pending work and closes sessions
func TestHostContextCancel(t *testing.T) {
	h := NewHost(4, DefaultOptions(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()

	if _, err := h.Open(rampArray(t, 3, 3, 2), ""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, func() bool { return h.Len() == 1 })

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for Run to return")
	}
	if h.Len() != 0 {
		t.Errorf("Expected sessions closed on cancel, got %d", h.Len())
	}
}

// TestHostCloseUnknown verifies closing an unknown ID is ignored
func TestHostCloseUnknown(t *testing.T) {
	h := NewHost(4, DefaultOptions(), zerolog.Nop())
	go h.Run(context.Background())
	if err := h.Submit(CloseViewer{ID: "missing"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := h.Submit(Shutdown{}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-h.Done()
}
