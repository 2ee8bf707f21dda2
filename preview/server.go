// Package preview serves the live diagram to a browser: a page showing both
// surfaces, the frames as PNG, and a websocket that announces new frames and
// accepts the pause key and window resizes.
package preview

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/echoflaresat/orbitview/loop"
	"github.com/echoflaresat/orbitview/metrics"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
)

//go:embed web
var content embed.FS

// MaxSurfaceSize bounds either side of a resized primary surface.
const MaxSurfaceSize = 4096

const pngCacheSize = 16

type Options struct {
	Addr      string
	Animation Animation
	Metrics   *metrics.Collector // optional
	Logger    *slog.Logger
}

type Server struct {
	httpServer *http.Server
	anim       Animation
	metrics    *metrics.Collector
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	hub        *hub
	pngs       *lru.Cache // pngKey -> []byte
}

type pngKey struct {
	surface string
	seq     uint64
}

func NewServer(opts Options) (*Server, error) {
	pngs, err := lru.New(pngCacheSize)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		anim:    opts.Animation,
		metrics: opts.Metrics,
		logger:  logger.With("component", "preview"),
		hub:     newHub(),
		pngs:    pngs,
	}

	page, err := fs.Sub(content, "web")
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", http.FileServerFS(page))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /frames/{file}", s.handleFrame)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("POST /api/v1/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/v1/resize", s.handleResize)

	// metrics -> logging -> mux
	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	if s.metrics != nil {
		handler = s.metrics.Middleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// CloseClients disconnects every websocket client. Shutdown does not touch
// hijacked connections, so call this alongside it.
func (s *Server) CloseClients() {
	s.hub.closeAll()
}

// Publish announces a finished frame to websocket clients. It is meant as a
// loop.OnFrame hook and never blocks.
func (s *Server) Publish(info loop.FrameInfo) {
	s.hub.broadcast(message{
		Type:    "frame",
		Seq:     info.Seq,
		Elapsed: info.Elapsed.Seconds(),
		Running: s.anim.State() == loop.Running,
	})
}

func (s *Server) stateMessage(state loop.State) message {
	return message{Type: "state", State: state.String(), Running: state == loop.Running}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	var surface string
	switch r.PathValue("file") {
	case SurfacePrimary + ".png":
		surface = SurfacePrimary
	case SurfaceSatellite + ".png":
		surface = SurfaceSatellite
	default:
		writeError(w, http.StatusNotFound, "unknown surface")
		return
	}

	frame := s.anim.Frame(surface)
	if frame == nil {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}

	key := pngKey{surface: surface, seq: frame.Seq}
	data, ok := s.pngs.Get(key)
	if !ok {
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame.Image); err != nil {
			s.logger.Error("encode frame", "surface", surface, "seq", frame.Seq, "error", err)
			writeError(w, http.StatusInternalServerError, "encode failed")
			return
		}
		data = buf.Bytes()
		s.pngs.Add(key, data)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Write(data.([]byte))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"state": s.anim.State().String()}
	for _, surface := range []string{SurfacePrimary, SurfaceSatellite} {
		if f := s.anim.Frame(surface); f != nil {
			b := f.Image.Bounds()
			resp[surface] = map[string]any{"seq": f.Seq, "width": b.Dx(), "height": b.Dy()}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	state, err := s.toggle(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateMessage(state))
}

func (s *Server) toggle(r *http.Request) (loop.State, error) {
	state, err := s.anim.Toggle(r.Context())
	if err != nil {
		return state, err
	}
	s.metrics.SetState(state)
	s.hub.broadcast(s.stateMessage(state))
	return state, nil
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, height, err := parseSize(q.Get("width"), q.Get("height"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.anim.Resize(r.Context(), width, height); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Debug("resized", "width", width, "height", height)
	writeJSON(w, http.StatusOK, map[string]int{"width": width, "height": height})
}

func parseSize(ws, hs string) (int, int, error) {
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", ws)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", hs)
	}
	if err := checkSize(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func checkSize(w, h int) error {
	if w < 1 || h < 1 || w > MaxSurfaceSize || h > MaxSurfaceSize {
		return fmt.Errorf("size %dx%d out of range, each side must be 1-%d", w, h, MaxSurfaceSize)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan message, 8)}
	s.hub.add(c)
	s.logger.Info("websocket connected", "remote_ip", r.RemoteAddr, "clients", s.hub.len())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()
	s.hub.sendTo(c, s.stateMessage(s.anim.State()))

	for {
		var in message
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", "error", err)
			}
			break
		}
		s.handleMessage(r, c, in)
	}

	s.hub.remove(c)
	<-done
	conn.Close()
	s.logger.Info("websocket disconnected", "remote_ip", r.RemoteAddr)
}

func (s *Server) handleMessage(r *http.Request, c *client, in message) {
	switch in.Type {
	case "toggle":
		if _, err := s.toggle(r); err != nil {
			s.hub.sendTo(c, message{Type: "error", Error: err.Error()})
		}
	case "resize":
		err := checkSize(in.Width, in.Height)
		if err == nil {
			err = s.anim.Resize(r.Context(), in.Width, in.Height)
		}
		if err != nil {
			s.hub.sendTo(c, message{Type: "error", Error: err.Error()})
			return
		}
		s.hub.sendTo(c, message{Type: "resize", Width: in.Width, Height: in.Height, Running: s.anim.State() == loop.Running})
	default:
		s.hub.sendTo(c, message{Type: "error", Error: fmt.Sprintf("unknown message type %q", in.Type)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("preview: response writer does not support hijacking")
	}
	return h.Hijack()
}

// quietPath reports paths polled often enough that logging them at info
// would drown everything else.
func quietPath(path string) bool {
	switch path {
	case "/healthz", "/metrics", "/frames/primary.png", "/frames/satellite.png":
		return true
	}
	return false
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if quietPath(r.URL.Path) {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
