// Package api exposes viewer sessions over HTTP: session creation from NPY
// uploads, the interactive operations, frame downloads, a WebSocket change
// stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/btasdelen/arrview/internal/logger"
	"github.com/btasdelen/arrview/internal/models"
	"github.com/btasdelen/arrview/pkg/arrayio"
	"github.com/btasdelen/arrview/pkg/colormap"
	"github.com/btasdelen/arrview/pkg/display"
	"github.com/btasdelen/arrview/pkg/export"
	"github.com/btasdelen/arrview/pkg/ndarray"
	"github.com/btasdelen/arrview/pkg/selection"
	"github.com/btasdelen/arrview/pkg/visualization"
)

// MaxUploadBytes bounds the size of an uploaded array.
const MaxUploadBytes = 1 << 30

var errBadRequest = errors.New("bad request")

// RouterConfig contains router configuration.
type RouterConfig struct {
	Host        *visualization.Host
	CORSOrigins []string
	Metrics     *Metrics
	Log         zerolog.Logger

	// FrameRate is used when an animation request does not name one
	FrameRate int
}

// NewRouter creates the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.Host)
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 10
	}
	s := &server{cfg: cfg, log: logger.Component(cfg.Log, "api")}
	s.upgrader = s.newUpgrader()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cfg.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Encoding"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Get("/", s.getSession)
			r.Delete("/", s.closeSession)
			r.Post("/roles", s.assignRole)
			r.Post("/index", s.setIndex)
			r.Post("/scroll", s.scroll)
			r.Put("/view", s.setView)
			r.Put("/transform", s.setTransform)
			r.Post("/contrast", s.contrast)
			r.Post("/animation", s.startAnimation)
			r.Delete("/animation", s.stopAnimation)
			r.Get("/frame.png", s.framePNG)
			r.Get("/frame.npy", s.frameArray)
			r.Get("/frame.mat", s.frameArray)
			r.Get("/events", s.events)
		})
	})

	return r
}

type server struct {
	cfg      RouterConfig
	log      zerolog.Logger
	upgrader *websocket.Upgrader
}

type ctxKey string

const viewerKey ctxKey = "viewer"

// sessionMiddleware resolves the session from the URL and injects the viewer
// into the request context.
func (s *server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		v, ok := s.cfg.Host.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("session not found: %s", id))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey, v)))
	})
}

func viewerFrom(r *http.Request) *visualization.Viewer {
	return r.Context().Value(viewerKey).(*visualization.Viewer)
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, visualization.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, visualization.ErrQueueFull), errors.Is(err, visualization.ErrHostClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, display.ErrInvalidViewMode),
		errors.Is(err, visualization.ErrSingletonAxis),
		errors.Is(err, ndarray.ErrNotPlanar):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, selection.ErrOutOfRange),
		errors.Is(err, selection.ErrAxisBound),
		errors.Is(err, selection.ErrAxisOutOfRange),
		errors.Is(err, selection.ErrInvalidRole),
		errors.Is(err, colormap.ErrUnknownColormap),
		errors.Is(err, visualization.ErrInvalidFrameRate),
		errors.Is(err, ndarray.ErrInvalidShape),
		errors.Is(err, ndarray.ErrShapeMismatch),
		errors.Is(err, arrayio.ErrBadHeader),
		errors.Is(err, arrayio.ErrUnsupportedDType):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// createSession reads an NPY body, optionally zstd-compressed, and queues a
// new session for it.
func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "zstd") {
		zr, err := zstd.NewReader(body)
		if err != nil {
			s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		defer zr.Close()
		body = zr
	}

	data, err := arrayio.ReadNPY(body)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	id, err := s.cfg.Host.Open(data, r.URL.Query().Get("title"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *server) listSessions(w http.ResponseWriter, r *http.Request) {
	out := []models.SessionSummary{}
	for _, id := range s.cfg.Host.IDs() {
		v, ok := s.cfg.Host.Get(id)
		if !ok {
			continue
		}
		out = append(out, models.SessionSummary{ID: id, Title: v.Title(), Shape: v.Data().Shape()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := viewerFrom(r).State()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Host.Submit(visualization.CloseViewer{ID: viewerFrom(r).ID()}); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// respondState answers a mutation with the resulting session state.
func (s *server) respondState(w http.ResponseWriter, v *visualization.Viewer, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	st, err := v.State()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type roleRequest struct {
	Axis int    `json:"axis"`
	Role string `json:"role"`
}

func (s *server) assignRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	role, err := selection.ParseRole(req.Role)
	if err != nil {
		s.fail(w, err)
		return
	}
	v := viewerFrom(r)
	s.respondState(w, v, v.AssignRole(req.Axis, role))
}

type indexRequest struct {
	Axis  int `json:"axis"`
	Value int `json:"value"`
}

func (s *server) setIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	v := viewerFrom(r)
	s.respondState(w, v, v.SetIndex(req.Axis, req.Value))
}

type scrollRequest struct {
	Steps int `json:"steps"`
}

func (s *server) scroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	changed, err := viewerFrom(r).Scroll(req.Steps)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

type viewRequest struct {
	Mode     string `json:"mode,omitempty"`
	Colormap string `json:"colormap,omitempty"`
}

func (s *server) setView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	v := viewerFrom(r)
	if req.Mode != "" {
		mode, err := display.ParseViewMode(req.Mode)
		if err != nil {
			s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		if err := v.SetViewMode(mode); err != nil {
			s.fail(w, err)
			return
		}
	}
	var err error
	if req.Colormap != "" {
		err = v.SetColormap(req.Colormap)
	}
	s.respondState(w, v, err)
}

func (s *server) setTransform(w http.ResponseWriter, r *http.Request) {
	var tr display.Transform
	if err := decodeBody(r, &tr); err != nil {
		s.fail(w, err)
		return
	}
	v := viewerFrom(r)
	s.respondState(w, v, v.SetTransform(tr))
}

type contrastRequest struct {
	Action string   `json:"action"`
	DX     float64  `json:"dx,omitempty"`
	DY     float64  `json:"dy,omitempty"`
	Window *float64 `json:"window,omitempty"`
	Level  *float64 `json:"level,omitempty"`
}

func (s *server) contrast(w http.ResponseWriter, r *http.Request) {
	var req contrastRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	v := viewerFrom(r)
	var err error
	switch req.Action {
	case "auto":
		err = v.AutoLevel()
	case "relevel":
		err = v.Relevel()
	case "drag":
		err = v.AdjustContrast(req.DX, req.DY)
	case "set":
		if req.Window == nil && req.Level == nil {
			err = fmt.Errorf("%w: set needs window or level", errBadRequest)
			break
		}
		if req.Window != nil {
			err = v.SetWindow(*req.Window)
		}
		if err == nil && req.Level != nil {
			err = v.SetLevel(*req.Level)
		}
	default:
		err = fmt.Errorf("%w: unknown contrast action %q", errBadRequest, req.Action)
	}
	s.respondState(w, v, err)
}

type animationRequest struct {
	FPS float64 `json:"fps,omitempty"`
}

func (s *server) startAnimation(w http.ResponseWriter, r *http.Request) {
	var req animationRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.fail(w, err)
			return
		}
	}
	if req.FPS == 0 {
		req.FPS = float64(s.cfg.FrameRate)
	}
	v := viewerFrom(r)
	s.respondState(w, v, v.StartAnimation(req.FPS))
}

func (s *server) stopAnimation(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	v.StopAnimation()
	s.respondState(w, v, nil)
}

// framePNG renders the current frame, or the frame at ?index= along the
// dynamic axis. ?label=1 adds the frame label strip.
func (s *server) framePNG(w http.ResponseWriter, r *http.Request) {
	v := viewerFrom(r)
	q := r.URL.Query()

	index := -1
	if raw := q.Get("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(w, fmt.Errorf("%w: index %q", errBadRequest, raw))
			return
		}
		index = i
	}

	frame, err := s.render(v, index)
	if err != nil {
		s.fail(w, err)
		return
	}
	if q.Get("label") == "1" {
		if index < 0 {
			st, err := v.State()
			if err != nil {
				s.fail(w, err)
				return
			}
			index = max(st.Indices[st.Roles[selection.Dynamic]], 0)
		}
		frame = export.Annotate(frame, v.FrameLabel(index))
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, frame); err != nil {
		s.log.Warn().Err(err).Msg("failed to write frame")
		return
	}
	s.cfg.Metrics.framesRendered.Inc()
}

func (s *server) render(v *visualization.Viewer, index int) (image.Image, error) {
	if index < 0 {
		return v.RenderImage()
	}
	return v.RenderAt(index)
}

// frameArray writes the raw frame of the current selection as .npy or .mat.
func (s *server) frameArray(w http.ResponseWriter, r *http.Request) {
	a, err := viewerFrom(r).CurrentFrame()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if strings.HasSuffix(r.URL.Path, ".mat") {
		w.Header().Set("Content-Type", "application/x-matlab-data")
		err = arrayio.WriteMAT(w, arrayio.DefaultMATVariable, a)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		err = arrayio.WriteNPY(w, a)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to write frame array")
	}
}
