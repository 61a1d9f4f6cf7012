// Package visualization owns viewer sessions: the mutable selection, display
// and contrast state for one array, the scrub animation loop, and the host
// that creates sessions from a command queue.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/btasdelen/arrview/internal/models"
	"github.com/btasdelen/arrview/pkg/colormap"
	"github.com/btasdelen/arrview/pkg/config"
	"github.com/btasdelen/arrview/pkg/contrast"
	"github.com/btasdelen/arrview/pkg/display"
	"github.com/btasdelen/arrview/pkg/ndarray"
	"github.com/btasdelen/arrview/pkg/selection"
)

// ErrClosed is returned by every operation on a closed viewer.
var ErrClosed = errors.New("viewer closed")

// EventKind classifies a change notification.
type EventKind int

const (
	SelectionChanged EventKind = iota
	ContrastChanged
	ViewChanged
	Closed
)

var eventKindNames = [...]string{"selection", "contrast", "view", "closed"}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is delivered to subscribers after an operation completes.
type Event struct {
	ViewerID string    `json:"viewerId"`
	Kind     EventKind `json:"kind"`
}

// Options tunes a viewer session.
type Options struct {
	LowPercentile     float64
	HighPercentile    float64
	Sensitivity       float64
	ColormapSamples   int
	Colormap          string
	FrameRate         int
	FrameCacheSize    int
	MagnitudeWeighted bool
	ExportWorkers     int
}

// DefaultOptions mirrors config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig extracts the viewer section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	v := cfg.Viewer
	return Options{
		LowPercentile:     v.LowPercentile,
		HighPercentile:    v.HighPercentile,
		Sensitivity:       v.Sensitivity,
		ColormapSamples:   v.ColormapSamples,
		Colormap:          v.Colormap,
		FrameRate:         v.FrameRate,
		FrameCacheSize:    v.FrameCacheSize,
		MagnitudeWeighted: v.MagnitudeWeighted,
		ExportWorkers:     v.ExportWorkers,
	}
}

type cachedFrame struct {
	raw   *ndarray.Array
	frame *ndarray.Frame
}

// Viewer is one viewing session over an immutable array. All methods are safe
// for concurrent use; subscribers are called after the state lock is released.
type Viewer struct {
	id    string
	title string
	data  *ndarray.Array
	opts  Options
	log   zerolog.Logger

	mu       sync.Mutex
	sel      *selection.Assigner
	wl       *contrast.WindowLevel
	pipeline *display.Pipeline
	mode     display.ViewMode
	tr       display.Transform
	cmapName string
	cmap     colormap.Colormap
	cache    *lru.Cache[string, *cachedFrame]
	anim     *animator
	pending  []EventKind
	closed   bool

	listenMu   sync.RWMutex
	listeners  map[int]func(Event)
	nextListen int
}

// NewViewer creates a session for data. The initial view mode is Magnitude for
// complex data and Real otherwise, and the contrast is auto-levelled.
func NewViewer(id string, data *ndarray.Array, title string, opts Options, log zerolog.Logger) (*Viewer, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil array", ndarray.ErrInvalidShape)
	}
	sel, err := selection.NewAssigner(data.Shape())
	if err != nil {
		return nil, err
	}
	cmap, err := colormap.Lookup(opts.Colormap)
	if err != nil {
		return nil, err
	}
	size := opts.FrameCacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, *cachedFrame](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}
	if title == "" {
		title = fmt.Sprintf("%s %s", data.DType(), shapeString(data.Shape()))
	}

	v := &Viewer{
		id:       id,
		title:    title,
		data:     data,
		opts:     opts,
		log:      log.With().Str("viewer", id).Logger(),
		sel:      sel,
		wl:       contrast.New(),
		pipeline: display.NewPipeline(opts.ColormapSamples, opts.MagnitudeWeighted),
		mode:     display.DefaultMode(data.IsComplex()),
		cmapName: strings.ToLower(opts.Colormap),
		cmap:     cmap,
		cache:    cache,
	}
	if v.cmapName == "" {
		v.cmapName = "gray"
	}
	sel.Subscribe(func(selection.Change) { v.mark(SelectionChanged) })

	if err := v.autoLevel(); err != nil {
		v.log.Warn().Err(err).Msg("initial auto-level failed")
	}
	v.pending = nil
	v.log.Info().Ints("shape", data.Shape()).Str("dtype", data.DType()).Msg("viewer created")
	return v, nil
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, "x") + ")"
}

// ID returns the session identifier.
func (v *Viewer) ID() string { return v.id }

// Title returns the session title.
func (v *Viewer) Title() string { return v.title }

// Data returns the viewed array.
func (v *Viewer) Data() *ndarray.Array { return v.data }

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (v *Viewer) Subscribe(fn func(Event)) (unsubscribe func()) {
	v.listenMu.Lock()
	defer v.listenMu.Unlock()
	if v.listeners == nil {
		v.listeners = make(map[int]func(Event))
	}
	id := v.nextListen
	v.nextListen++
	v.listeners[id] = fn
	return func() {
		v.listenMu.Lock()
		delete(v.listeners, id)
		v.listenMu.Unlock()
	}
}

// mark queues one notification of kind for the running operation. Must be
// called with mu held.
func (v *Viewer) mark(kind EventKind) {
	for _, k := range v.pending {
		if k == kind {
			return
		}
	}
	v.pending = append(v.pending, kind)
}

func (v *Viewer) emit(kinds []EventKind) {
	if len(kinds) == 0 {
		return
	}
	v.listenMu.RLock()
	ids := make([]int, 0, len(v.listeners))
	for id := range v.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(Event), len(ids))
	for i, id := range ids {
		listeners[i] = v.listeners[id]
	}
	v.listenMu.RUnlock()
	for _, k := range kinds {
		ev := Event{ViewerID: v.id, Kind: k}
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// update runs fn under the state lock and then delivers the notifications it
// queued. On error nothing is delivered.
func (v *Viewer) update(fn func() error) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	err := fn()
	events := v.pending
	v.pending = nil
	v.mu.Unlock()

	if err != nil {
		return err
	}
	v.emit(events)
	return nil
}

func (v *Viewer) read(fn func() error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	return fn()
}

// AssignRole binds role to axis. When axis already holds another role the
// two axes swap roles instead of unbinding the previous holder.
func (v *Viewer) AssignRole(axis int, role selection.Role) error {
	return v.update(func() error {
		if err := v.sel.AssignRole(axis, role); err != nil {
			return err
		}
		v.log.Debug().Int("axis", axis).Stringer("role", role).Ints("roles", rolesSlice(v.sel.Roles())).Msg("role assigned")
		return nil
	})
}

func rolesSlice(r [3]int) []int { return r[:] }

// SetIndex fixes the index of a non-planar axis; -1 selects the full range.
func (v *Viewer) SetIndex(axis, value int) error {
	return v.update(func() error {
		return v.sel.SetIndex(axis, value)
	})
}

// Scroll moves the dynamic index by steps wheel notches. Positive steps move
// towards index 0. It reports whether the index changed.
func (v *Viewer) Scroll(steps int) (bool, error) {
	var changed bool
	err := v.update(func() error {
		changed = v.sel.Step(-steps)
		return nil
	})
	return changed, err
}

// SetViewMode switches the view mode and re-levels the contrast.
func (v *Viewer) SetViewMode(mode display.ViewMode) error {
	return v.update(func() error {
		if mode < display.Magnitude || mode > display.Complex {
			return fmt.Errorf("%w: %v", display.ErrInvalidViewMode, mode)
		}
		if mode == display.Complex && !v.data.IsComplex() {
			return fmt.Errorf("%w: complex view of real data", display.ErrInvalidViewMode)
		}
		v.mode = mode
		v.relevelAfterViewChange()
		v.mark(ViewChanged)
		return nil
	})
}

// ViewMode returns the current view mode.
func (v *Viewer) ViewMode() display.ViewMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// SetTransform replaces the geometric transform. Toggling the FFT view
// re-levels the contrast.
func (v *Viewer) SetTransform(tr display.Transform) error {
	return v.update(func() error {
		tr.Rotation = tr.QuarterTurns()
		fftChanged := tr.FFT != v.tr.FFT
		v.tr = tr
		if fftChanged {
			v.relevelAfterViewChange()
		}
		v.mark(ViewChanged)
		return nil
	})
}

// Transform returns the current geometric transform.
func (v *Viewer) Transform() display.Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tr
}

// RotateClockwise turns the view a quarter turn clockwise.
func (v *Viewer) RotateClockwise() error {
	return v.update(func() error {
		v.tr.RotateClockwise()
		v.mark(ViewChanged)
		return nil
	})
}

// RotateCounterClockwise turns the view a quarter turn counter-clockwise.
func (v *Viewer) RotateCounterClockwise() error {
	return v.update(func() error {
		v.tr.RotateCounterClockwise()
		v.mark(ViewChanged)
		return nil
	})
}

// SetColormap selects the scalar colormap by name.
func (v *Viewer) SetColormap(name string) error {
	cmap, err := colormap.Lookup(name)
	if err != nil {
		return err
	}
	return v.update(func() error {
		v.cmap = cmap
		v.cmapName = strings.ToLower(name)
		v.mark(ViewChanged)
		return nil
	})
}

// AutoLevel recomputes min, max, window and level from the current frame. A
// degenerate frame is logged and leaves a usable unit-scale state.
func (v *Viewer) AutoLevel() error {
	return v.update(func() error {
		err := v.autoLevel()
		if err != nil && !errors.Is(err, contrast.ErrDegenerateRange) {
			return err
		}
		return nil
	})
}

// Relevel recomputes window and level from the current frame while keeping
// min, max and range.
func (v *Viewer) Relevel() error {
	return v.update(func() error {
		values, err := v.levelValues()
		if err != nil {
			return err
		}
		if err := v.wl.Relevel(values, v.opts.LowPercentile, v.opts.HighPercentile); err != nil {
			v.log.Warn().Err(err).Msg("relevel on degenerate frame")
		}
		v.mark(ContrastChanged)
		return nil
	})
}

// AdjustContrast applies a drag of (dx, dy) pixels.
func (v *Viewer) AdjustContrast(dx, dy float64) error {
	return v.update(func() error {
		v.wl.AdjustRelative(dx, dy, v.opts.Sensitivity)
		v.mark(ContrastChanged)
		return nil
	})
}

// SetWindow sets the window in data units.
func (v *Viewer) SetWindow(value float64) error {
	return v.update(func() error {
		v.wl.SetWindowAbsolute(value)
		v.mark(ContrastChanged)
		return nil
	})
}

// SetLevel sets the level in data units.
func (v *Viewer) SetLevel(value float64) error {
	return v.update(func() error {
		v.wl.SetLevelAbsolute(value)
		v.mark(ContrastChanged)
		return nil
	})
}

// DisplayRange returns the data values at the ends of the display scale.
func (v *Viewer) DisplayRange() (low, high float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.wl.DisplayRange()
}

// autoLevel must be called with mu held.
func (v *Viewer) autoLevel() error {
	values, err := v.levelValues()
	if err != nil {
		return err
	}
	err = v.wl.AutoLevel(values, v.opts.LowPercentile, v.opts.HighPercentile)
	if errors.Is(err, contrast.ErrDegenerateRange) {
		v.log.Warn().Float64("min", v.wl.Min()).Msg("frame has no value spread, using unit contrast scale")
	}
	v.mark(ContrastChanged)
	return err
}

// relevelAfterViewChange auto-levels after the displayed quantity changed. A
// selection that does not form a plane keeps the previous contrast.
func (v *Viewer) relevelAfterViewChange() {
	err := v.autoLevel()
	if err != nil && !errors.Is(err, contrast.ErrDegenerateRange) {
		v.log.Warn().Err(err).Msg("auto-level skipped")
	}
}

// levelValues returns the values the contrast model is fitted to. The complex
// view is levelled on magnitude since its display range acts as the
// magnitude limits of the colour mapper.
func (v *Viewer) levelValues() ([]float64, error) {
	entry, err := v.frameFor(v.sel.CurrentSlices())
	if err != nil {
		return nil, err
	}
	mode := v.mode
	if mode == display.Complex {
		mode = display.Magnitude
	}
	img, err := v.pipeline.Prepare(entry.frame, mode, display.Transform{FFT: v.tr.FFT}, nil)
	if err != nil {
		return nil, err
	}
	return img.Values(), nil
}

func sliceKey(slices []ndarray.Slice) string {
	var b strings.Builder
	for i, s := range slices {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// frameFor extracts (or fetches from the cache) the plane selected by slices.
func (v *Viewer) frameFor(slices []ndarray.Slice) (*cachedFrame, error) {
	key := sliceKey(slices)
	if entry, ok := v.cache.Get(key); ok {
		return entry, nil
	}
	raw, err := ndarray.Extract(v.data, slices)
	if err != nil {
		return nil, fmt.Errorf("failed to extract frame: %w", err)
	}
	frame, err := ndarray.ToFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to extract frame: %w", err)
	}
	entry := &cachedFrame{raw: raw, frame: frame}
	v.cache.Add(key, entry)
	return entry, nil
}

// clim is the magnitude range handed to the complex mapper. Must be called
// with mu held.
func (v *Viewer) clim() *[2]float64 {
	if v.mode != display.Complex {
		return nil
	}
	lo, hi := v.wl.DisplayRange()
	return &[2]float64{lo, hi}
}

func (v *Viewer) prepareAt(slices []ndarray.Slice) (*display.Image, error) {
	entry, err := v.frameFor(slices)
	if err != nil {
		return nil, err
	}
	return v.pipeline.Prepare(entry.frame, v.mode, v.tr, v.clim())
}

func (v *Viewer) rasterize(img *display.Image) *image.RGBA {
	lo, hi := v.wl.DisplayRange()
	return display.ToImage(img, lo, hi, v.cmap)
}

// CurrentFrame returns the raw squeezed frame, as used for array export.
func (v *Viewer) CurrentFrame() (*ndarray.Array, error) {
	var raw *ndarray.Array
	err := v.read(func() error {
		entry, err := v.frameFor(v.sel.CurrentSlices())
		if err != nil {
			return err
		}
		raw = entry.raw
		return nil
	})
	return raw, err
}

// Render returns the prepared current frame.
func (v *Viewer) Render() (*display.Image, error) {
	var img *display.Image
	err := v.read(func() error {
		var err error
		img, err = v.prepareAt(v.sel.CurrentSlices())
		return err
	})
	return img, err
}

// RenderImage returns the current frame rasterised with the display range and
// colormap.
func (v *Viewer) RenderImage() (image.Image, error) {
	var out image.Image
	err := v.read(func() error {
		img, err := v.prepareAt(v.sel.CurrentSlices())
		if err != nil {
			return err
		}
		out = v.rasterize(img)
		return nil
	})
	return out, err
}

// RenderAt rasterises the frame at dynamic index i with the current settings,
// without changing the selection.
func (v *Viewer) RenderAt(i int) (image.Image, error) {
	var out image.Image
	err := v.read(func() error {
		slices, err := v.sel.SlicesAt(i)
		if err != nil {
			return err
		}
		img, err := v.prepareAt(slices)
		if err != nil {
			return err
		}
		out = v.rasterize(img)
		return nil
	})
	return out, err
}

// Sequence rasterises every frame along the dynamic axis. The contrast and
// transform are those of the interactive view. Frames are divided among
// ExportWorkers goroutines.
func (v *Viewer) Sequence() ([]image.Image, error) {
	var frames []image.Image
	err := v.read(func() error {
		n := v.sel.DynamicExtent()
		slices := make([][]ndarray.Slice, n)
		for i := range slices {
			s, err := v.sel.SlicesAt(i)
			if err != nil {
				return err
			}
			slices[i] = s
		}

		workers := v.opts.ExportWorkers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		workers = min(workers, n)
		perWorker := (n + workers - 1) / workers

		frames = make([]image.Image, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			start, end := w*perWorker, min((w+1)*perWorker, n)
			if start >= end {
				continue
			}
			wg.Add(1)
			go func(start, end int) {
				defer wg.Done()
				for i := start; i < end; i++ {
					img, err := v.prepareAt(slices[i])
					if err != nil {
						errs[i] = fmt.Errorf("frame %d: %w", i, err)
						return
					}
					frames[i] = v.rasterize(img)
				}
			}(start, end)
		}
		wg.Wait()
		return errors.Join(errs...)
	})
	if err != nil {
		return nil, err
	}
	v.log.Debug().Int("frames", len(frames)).Msg("sequence rendered")
	return frames, nil
}

// FrameLabel describes dynamic frame i by the fixed indices of the other axes.
func (v *Viewer) FrameLabel(i int) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	roles := v.sel.Roles()
	var parts []string
	for axis, idx := range v.sel.Indices() {
		if axis == roles[selection.Row] || axis == roles[selection.Column] {
			continue
		}
		if v.sel.Rank() >= 3 && axis == roles[selection.Dynamic] {
			idx = i
		}
		if idx == selection.All {
			parts = append(parts, fmt.Sprintf("d%d=:", axis))
		} else {
			parts = append(parts, fmt.Sprintf("d%d=%d", axis, idx))
		}
	}
	if len(parts) == 0 {
		return v.title
	}
	return v.title + " " + strings.Join(parts, " ")
}

// State returns a snapshot of the session.
func (v *Viewer) State() (models.ViewerState, error) {
	var st models.ViewerState
	err := v.read(func() error {
		st = models.ViewerState{
			ID:       v.id,
			Title:    v.title,
			Shape:    v.data.Shape(),
			DType:    v.data.DType(),
			Roles:    v.sel.Roles(),
			Indices:  v.sel.Indices(),
			ViewMode: v.mode.String(),
			Colormap: v.cmapName,
			Transform: models.TransformState{
				Transpose: v.tr.Transpose,
				FlipH:     v.tr.FlipH,
				FlipV:     v.tr.FlipV,
				Rotation:  v.tr.QuarterTurns(),
				FFT:       v.tr.FFT,
			},
		}
		lo, hi := v.wl.DisplayRange()
		st.Contrast = models.ContrastState{
			Min:        v.wl.Min(),
			Max:        v.wl.Max(),
			Range:      v.wl.Range(),
			Window:     v.wl.Window(),
			Level:      v.wl.Level(),
			Low:        lo,
			High:       hi,
			Degenerate: v.wl.Degenerate(),
		}
		st.Animation.Extent = v.sel.DynamicExtent()
		if v.anim != nil {
			st.Animation.Running = true
			st.Animation.FPS = v.anim.fps
		}

		// A non-planar selection has no image; the rest of the snapshot stands.
		if img, err := v.prepareAt(v.sel.CurrentSlices()); err == nil {
			r, c := img.Dims()
			st.FrameShape = [2]int{r, c}
			s := display.ImageStats(img)
			st.Stats = models.FrameStats{Min: s.Min, Max: s.Max, Mean: s.Mean, StdDev: s.StdDev, NonFinite: s.NonFinite}
		}
		return nil
	})
	return st, err
}

// Close stops any animation, releases the frame cache and notifies subscribers
// with a Closed event. Closing twice is a no-op.
func (v *Viewer) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	// closed and anim change together so StartAnimation cannot slip in between.
	v.closed = true
	a := v.anim
	v.anim = nil
	v.cache.Purge()
	v.pending = nil
	v.mu.Unlock()

	if a != nil {
		a.cancel()
		<-a.done
		v.log.Debug().Msg("animation stopped")
	}

	v.emit([]EventKind{Closed})
	v.listenMu.Lock()
	v.listeners = nil
	v.listenMu.Unlock()
	v.log.Info().Msg("viewer closed")
}
