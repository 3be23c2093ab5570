// Package web provides the HTTP status server and control API for the
// step-sensor daemon.
package web

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/status"
	"github.com/sweeney/step-sensor/internal/tracker"
)

// Controller is the set of session commands exposed over HTTP.
// *tracker.Tracker implements it.
type Controller interface {
	Start() (tracker.SourceKind, error)
	Stop() error
	ResetSteps() error
	ResetFloors() error
	StartCalibration() error
	CalibrateWithKnown(knownSteps int64) (bool, error)
	ApplyPreset(s logic.Sensitivity) error
	SetSensitivityDirect(threshold float64, minInterval time.Duration) error
	Snapshot() (tracker.Snapshot, error)
}

// Server serves the status page, the control API and the live feed.
type Server struct {
	httpServer *http.Server
	status     *status.Tracker
	ctl        Controller
	hub        *Hub
}

// New creates a Server that reads state from st and sends commands to ctl.
// hub may be nil to disable the live feed.
func New(addr string, st *status.Tracker, ctl Controller, hub *Hub) *Server {
	s := &Server{status: st, ctl: ctl, hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if hub != nil {
		mux.HandleFunc("/ws", hub.serveWS)
	}
	if ctl != nil {
		mux.HandleFunc("/api/start", s.post(s.handleStart))
		mux.HandleFunc("/api/stop", s.post(func(*http.Request) error { return ctl.Stop() }))
		mux.HandleFunc("/api/reset/steps", s.post(func(*http.Request) error { return ctl.ResetSteps() }))
		mux.HandleFunc("/api/reset/floors", s.post(func(*http.Request) error { return ctl.ResetFloors() }))
		mux.HandleFunc("/api/calibration/start", s.post(func(*http.Request) error { return ctl.StartCalibration() }))
		mux.HandleFunc("/api/calibrate", s.post(s.handleCalibrate))
		mux.HandleFunc("/api/sensitivity", s.post(s.handleSensitivity))
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects live clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.status.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render status page: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// badRequest marks errors caused by the request rather than the tracker.
type badRequest struct{ error }

// post wraps a command: POST only, refresh the status tracker afterwards and
// reply with the new status JSON.
func (s *Server) post(fn func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := fn(r); err != nil {
			code := http.StatusInternalServerError
			if _, ok := err.(badRequest); ok {
				code = http.StatusBadRequest
			} else {
				log.Printf("web: %s: %v", r.URL.Path, err)
			}
			http.Error(w, err.Error(), code)
			return
		}

		if snap, err := s.ctl.Snapshot(); err == nil {
			s.status.Update(snap)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(status.FormatJSON(s.status.Snapshot()))
	}
}

func (s *Server) handleStart(*http.Request) error {
	kind, err := s.ctl.Start()
	if err != nil {
		return err
	}
	log.Printf("web: tracking started (source %s)", kind)
	return nil
}

func (s *Server) handleCalibrate(r *http.Request) error {
	known, err := strconv.ParseInt(r.URL.Query().Get("steps"), 10, 64)
	if err != nil {
		return badRequest{fmt.Errorf("steps: %w", err)}
	}
	ok, err := s.ctl.CalibrateWithKnown(known)
	if err != nil {
		return err
	}
	if !ok {
		return badRequest{fmt.Errorf("calibration needs positive known steps and at least one detected step")}
	}
	return nil
}

func (s *Server) handleSensitivity(r *http.Request) error {
	q := r.URL.Query()
	if p := q.Get("preset"); p != "" {
		sens, err := logic.ParseSensitivity(p)
		if err != nil {
			return badRequest{err}
		}
		return s.ctl.ApplyPreset(sens)
	}

	threshold, err := strconv.ParseFloat(q.Get("threshold"), 64)
	if err != nil {
		return badRequest{fmt.Errorf("threshold: %w", err)}
	}
	interval, err := time.ParseDuration(q.Get("interval"))
	if err != nil {
		return badRequest{fmt.Errorf("interval: %w", err)}
	}
	if !logic.ValidThreshold(threshold) || interval < 0 {
		return badRequest{fmt.Errorf("threshold must be positive and finite, interval not negative")}
	}
	return s.ctl.SetSensitivityDirect(threshold, interval)
}
