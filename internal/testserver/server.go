// Package testserver runs an in-process fake of the dashboard API for tests.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Server is a fake dashboard API backed by httptest.
type Server struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu           sync.Mutex
	alerts       []models.AlertRecord
	logFiles     []models.LogFile
	watched      []string
	activeRules  int
	unopenable   map[string]bool
	token        string
	failStats    bool
	failAlerts   bool
	failStart    string
	failStop     string
	failAnalyze  string
	alertsGate   chan struct{}
	conns        map[*websocket.Conn]struct{}
	dials        int
	statsCalls   int
	alertsCalls  int
	startCalls   [][]string
	stopCalls    [][]string
	analyzeCalls [][]string
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		unopenable: make(map[string]bool),
		conns:      make(map[*websocket.Conn]struct{}),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/logfiles", s.handleLogFiles)
		r.Get("/tail/alerts", s.handleAlerts)
		r.Post("/tail/start", s.handleStart)
		r.Post("/tail/stop", s.handleStop)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/tail/ws", s.handleWS)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the API base URL.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Close drops websocket connections and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.mu.Lock()
	if s.alertsGate != nil {
		close(s.alertsGate)
		s.alertsGate = nil
	}
	s.mu.Unlock()
	s.Server.Close()
}

// RequireToken makes the websocket endpoint require ?token=<token>.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetAlerts replaces the alert snapshot served by /tail/alerts.
func (s *Server) SetAlerts(alerts []models.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append([]models.AlertRecord(nil), alerts...)
}

// AddAlert appends an alert to the snapshot.
func (s *Server) AddAlert(a models.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

// SetLogFiles sets the configured log files.
func (s *Server) SetLogFiles(files []models.LogFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logFiles = append([]models.LogFile(nil), files...)
}

// SetWatched sets the files the fake tailer reports as watched.
func (s *Server) SetWatched(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append([]string(nil), paths...)
}

// SetActiveRules sets the active rule count reported in stats.
func (s *Server) SetActiveRules(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRules = n
}

// SetUnopenable marks a path the fake tailer fails to open.
func (s *Server) SetUnopenable(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unopenable[path] = true
}

// FailStats makes /stats answer 500.
func (s *Server) FailStats(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStats = fail
}

// FailAlerts makes /tail/alerts answer 500.
func (s *Server) FailAlerts(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAlerts = fail
}

// FailStart makes /tail/start answer 400 with msg; empty clears it.
func (s *Server) FailStart(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStart = msg
}

// FailStop makes /tail/stop answer 500 with msg; empty clears it.
func (s *Server) FailStop(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStop = msg
}

// FailAnalyze makes /analyze answer 500 with msg; empty clears it.
func (s *Server) FailAnalyze(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAnalyze = msg
}

// HoldAlerts blocks /tail/alerts responses until the returned release func
// is called. The snapshot is captured before blocking.
func (s *Server) HoldAlerts() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.alertsGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.alertsGate == gate {
				s.alertsGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Push sends an alert to every connected websocket client.
func (s *Server) Push(a models.AlertRecord) {
	data, _ := json.Marshal(a)
	s.PushRaw(data)
}

// PushRaw sends a raw text message to every connected websocket client.
func (s *Server) PushRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// DropConnections closes every websocket connection from the server side.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Dials returns the number of websocket upgrades accepted.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Calls returns request counts for /stats and /tail/alerts.
func (s *Server) Calls() (stats, alerts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsCalls, s.alertsCalls
}

// StartCalls returns the file lists received by /tail/start.
func (s *Server) StartCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.startCalls...)
}

// StopCalls returns the file lists received by /tail/stop.
func (s *Server) StopCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.stopCalls...)
}

// AnalyzeCalls returns the file lists received by /analyze.
func (s *Server) AnalyzeCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.analyzeCalls...)
}

// WaitFor polls cond until it holds or the timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v: %s", timeout, msg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.statsCalls++
	if s.failStats {
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}

	counts := make(map[string]int)
	for _, a := range s.alerts {
		counts[a.Severity]++
	}
	stats := models.Stats{
		TotalAlerts:      len(s.alerts),
		SeverityCount:    counts,
		ActiveRules:      s.activeRules,
		WatchedFiles:     len(s.watched),
		IsTailing:        len(s.watched) > 0,
		WatchedFilesList: append([]string{}, s.watched...),
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogFiles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	files := append([]models.LogFile{}, s.logFiles...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.alertsCalls++
	if s.failAlerts {
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "alerts unavailable"})
		return
	}
	alerts := append([]models.AlertRecord{}, s.alerts...)
	gate := s.alertsGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusOK, alerts)
}

type tailRequest struct {
	Files []string `json:"files"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req tailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls = append(s.startCalls, req.Files)
	if s.failStart != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": s.failStart})
		return
	}

	res := models.TailStartResult{Started: []string{}, Failed: []string{}}
	for _, path := range req.Files {
		if s.unopenable[path] {
			res.Failed = append(res.Failed, path)
			continue
		}
		res.Started = append(res.Started, path)
		if !contains(s.watched, path) {
			s.watched = append(s.watched, path)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req tailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls = append(s.stopCalls, req.Files)
	if s.failStop != "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": s.failStop})
		return
	}

	kept := s.watched[:0]
	for _, path := range s.watched {
		if !contains(req.Files, path) {
			kept = append(kept, path)
		}
	}
	s.watched = kept
	writeJSON(w, http.StatusOK, map[string]string{"message": "Tailing stopped"})
}

// handleAnalyze reports the stored alerts whose log file was requested.
// An empty request analyzes every enabled file.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req tailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzeCalls = append(s.analyzeCalls, req.Files)
	if s.failAnalyze != "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": s.failAnalyze})
		return
	}

	files := req.Files
	if len(files) == 0 {
		files = models.EnabledPaths(s.logFiles)
	}
	var entries []models.AlertRecord
	for _, a := range s.alerts {
		if contains(files, a.LogFile) {
			entries = append(entries, a)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" && r.URL.Query().Get("token") != token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.dials++
	s.mu.Unlock()

	// Drain until the client goes away so close frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
