package visualization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/btasdelen/arrview/internal/logger"
	"github.com/btasdelen/arrview/pkg/ndarray"
)

var (
	// ErrQueueFull is returned by Submit when the command queue is at capacity.
	ErrQueueFull = errors.New("command queue full")
	// ErrHostClosed is returned by Submit after shutdown.
	ErrHostClosed = errors.New("host closed")
)

// Command is a request processed by the host loop.
type Command interface {
	command()
}

// Create opens a new viewer session.
type Create struct {
	ID    string
	Data  *ndarray.Array
	Title string
}

// CloseViewer closes one session.
type CloseViewer struct {
	ID string
}

// Shutdown closes every session and stops the host loop.
type Shutdown struct{}

func (Create) command()      {}
func (CloseViewer) command() {}
func (Shutdown) command()    {}

// Host owns the set of open viewers. Sessions are created and closed by the
// Run loop from commands submitted through a bounded queue.
type Host struct {
	opts Options
	log  zerolog.Logger
	cmds chan Command

	// submitMu orders sends against shutdown so that a command accepted by
	// Submit is always seen by the drain.
	submitMu sync.RWMutex
	closed   atomic.Bool
	done     chan struct{}

	mu       sync.RWMutex
	sessions map[string]*Viewer
	onCreate []func(*Viewer)
	onClose  []func(string)
}

// NewHost returns a host whose queue holds up to queueSize pending commands.
func NewHost(queueSize int, opts Options, log zerolog.Logger) *Host {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Host{
		opts:     opts,
		log:      logger.Component(log, "host"),
		cmds:     make(chan Command, queueSize),
		done:     make(chan struct{}),
		sessions: make(map[string]*Viewer),
	}
}

// Submit queues cmd without blocking.
func (h *Host) Submit(cmd Command) error {
	h.submitMu.RLock()
	defer h.submitMu.RUnlock()
	if h.closed.Load() {
		return ErrHostClosed
	}
	select {
	case h.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Open queues the creation of a session for data and returns its ID at once.
// Each call creates an independent session.
func (h *Host) Open(data *ndarray.Array, title string) (string, error) {
	if data == nil {
		return "", fmt.Errorf("%w: nil array", ndarray.ErrInvalidShape)
	}
	id := uuid.NewString()
	if err := h.Submit(Create{ID: id, Data: data, Title: title}); err != nil {
		return "", err
	}
	return id, nil
}

// OnCreate registers fn to run in the host loop after each session is created.
func (h *Host) OnCreate(fn func(*Viewer)) {
	h.mu.Lock()
	h.onCreate = append(h.onCreate, fn)
	h.mu.Unlock()
}

// OnClose registers fn to run after a session is closed.
func (h *Host) OnClose(fn func(id string)) {
	h.mu.Lock()
	h.onClose = append(h.onClose, fn)
	h.mu.Unlock()
}

// Get returns the session with the given ID.
func (h *Host) Get(id string) (*Viewer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.sessions[id]
	return v, ok
}

// IDs returns the open session IDs in sorted order.
func (h *Host) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions.
func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Done is closed when Run has returned.
func (h *Host) Done() <-chan struct{} { return h.done }

// Run processes commands until a Shutdown command arrives or ctx is
// cancelled. Either way every session is closed before it returns. The
// returned error is ctx.Err() on cancellation and nil otherwise.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)
	h.log.Info().Int("queue", cap(h.cmds)).Msg("host started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case cmd := <-h.cmds:
			switch c := cmd.(type) {
			case Create:
				h.create(c)
			case CloseViewer:
				h.closeSession(c.ID)
			case Shutdown:
				h.shutdown()
				return nil
			}
		}
	}
}

func (h *Host) create(c Create) {
	v, err := NewViewer(c.ID, c.Data, c.Title, h.opts, h.log)
	if err != nil {
		h.log.Error().Err(err).Str("viewer", c.ID).Msg("failed to create viewer")
		return
	}

	h.mu.Lock()
	if _, exists := h.sessions[c.ID]; exists {
		h.mu.Unlock()
		h.log.Warn().Str("viewer", c.ID).Msg("duplicate session id ignored")
		v.Close()
		return
	}
	h.sessions[c.ID] = v
	hooks := append([]func(*Viewer){}, h.onCreate...)
	h.mu.Unlock()

	for _, fn := range hooks {
		fn(v)
	}
}

func (h *Host) closeSession(id string) {
	h.mu.Lock()
	v, ok := h.sessions[id]
	delete(h.sessions, id)
	hooks := append([]func(string){}, h.onClose...)
	h.mu.Unlock()

	if !ok {
		h.log.Warn().Str("viewer", id).Msg("close for unknown session")
		return
	}
	v.Close()
	for _, fn := range hooks {
		fn(id)
	}
}

func (h *Host) shutdown() {
	h.submitMu.Lock()
	h.closed.Store(true)
	h.submitMu.Unlock()

	dropped := 0
drain:
	for {
		select {
		case <-h.cmds:
			dropped++
		default:
			break drain
		}
	}
	if dropped > 0 {
		h.log.Warn().Int("dropped", dropped).Msg("pending commands discarded at shutdown")
	}

	for _, id := range h.IDs() {
		h.closeSession(id)
	}
	h.log.Info().Msg("host stopped")
}
