package visualization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btasdelen/arrview/pkg/selection"
)

var (
	// ErrSingletonAxis is returned when the dynamic axis has a single frame.
	ErrSingletonAxis = errors.New("cannot animate singleton dimension")
	// ErrInvalidFrameRate is returned for a frame rate outside
	// [MinFrameRate, MaxFrameRate].
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)

// Frame rate bounds accepted by StartAnimation, in frames per second.
const (
	MinFrameRate = 0.001
	MaxFrameRate = 1000
)

type animator struct {
	fps      float64
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// frameInterval converts a frame rate to a ticker period.
func frameInterval(fps float64) (time.Duration, error) {
	if math.IsNaN(fps) || fps < MinFrameRate || fps > MaxFrameRate {
		return 0, fmt.Errorf("%w: %g fps is outside [%g, %d]", ErrInvalidFrameRate, fps, MinFrameRate, MaxFrameRate)
	}
	interval := time.Duration(float64(time.Second) / fps)
	if interval <= 0 {
		return 0, fmt.Errorf("%w: %g fps", ErrInvalidFrameRate, fps)
	}
	return interval, nil
}

// StartAnimation advances the dynamic index once per 1/fps seconds, wrapping
// at the end of the axis. Fractional rates are allowed. A tick that arrives
// while the previous step is still running is dropped. A running animation is
// replaced.
func (v *Viewer) StartAnimation(fps float64) error {
	interval, err := frameInterval(fps)
	if err != nil {
		return err
	}
	for {
		v.StopAnimation()
		v.mu.Lock()
		if v.anim == nil {
			break
		}
		// Another caller started an animation in between.
		v.mu.Unlock()
	}
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if v.sel.DynamicExtent() <= 1 {
		v.log.Warn().Int("axis", v.sel.Axis(selection.Dynamic)).Msg("cannot animate singleton dimension")
		return ErrSingletonAxis
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &animator{fps: fps, interval: interval, cancel: cancel, done: make(chan struct{})}
	v.anim = a
	go v.animate(ctx, a)
	v.log.Debug().Float64("fps", fps).Dur("interval", interval).Msg("animation started")
	return nil
}

func (v *Viewer) animate(ctx context.Context, a *animator) {
	var (
		busy atomic.Bool
		wg   sync.WaitGroup
	)
	ticker := time.NewTicker(a.interval)
	defer func() {
		ticker.Stop()
		wg.Wait()
		close(a.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !busy.CompareAndSwap(false, true) {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer busy.Store(false)
				v.update(func() error {
					if ctx.Err() == nil {
						v.sel.Advance()
					}
					return nil
				})
			}()
		}
	}
}

// StopAnimation stops the animation and waits for the loop to exit.
func (v *Viewer) StopAnimation() {
	v.mu.Lock()
	a := v.anim
	v.anim = nil
	v.mu.Unlock()

	if a != nil {
		a.cancel()
		<-a.done
		v.log.Debug().Msg("animation stopped")
	}
}

// Animating reports whether the animation loop is running.
func (v *Viewer) Animating() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anim != nil
}
