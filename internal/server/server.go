package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/antirec/internal/discovery"
	"github.com/audiolibrelab/antirec/internal/engine"
	"github.com/audiolibrelab/antirec/internal/events"
	"github.com/audiolibrelab/antirec/internal/perturb"
	"github.com/audiolibrelab/antirec/internal/recordings"
	"github.com/audiolibrelab/antirec/internal/service"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	// maxStartBody bounds the JSON accepted by /start
	maxStartBody = 1 << 20
)

// Server represents the web server for controlling antirec
type Server struct {
	service service.Service
	port    string
	mdns    bool

	mux        *http.ServeMux
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mdnsManager *discovery.Manager

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// Options configures optional server features
type Options struct {
	Port string
	// EnableMDNS advertises the control server on the local network
	EnableMDNS bool
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status    string              `json:"status"`
	Message   string              `json:"message,omitempty"`
	Session   *engine.SessionInfo `json:"session,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	Config    *ResolvedConfigInfo `json:"resolved_config"`
}

// ResolvedConfigInfo contains configuration information for the UI
type ResolvedConfigInfo struct {
	ActiveProfile       string `json:"active_profile"`
	Backend             string `json:"backend"`
	DataDirectory       string `json:"data_directory"`
	WavesDirectory      string `json:"waves_directory"`
	VirtualOutputDevice string `json:"virtual_output_device"`
	Selection           string `json:"selection"`
	RelayMode           string `json:"relay_mode"`
	RelayCapacityMs     int    `json:"relay_capacity_ms"`
	Perturbation        string `json:"perturbation"`
	PerturbationKind    string `json:"perturbation_kind"`
}

// StartRequest is the body accepted by /start. An empty body starts the
// perturbation of the active profile.
type StartRequest struct {
	Values  []float32 `json:"values,omitempty"`
	Profile string    `json:"profile,omitempty"`
}

// RecordingsResponse represents the JSON response for the recordings list
type RecordingsResponse struct {
	Recordings     []recordings.Recording `json:"recordings"`
	TotalCount     int                    `json:"total_count"`
	WavesDirectory string                 `json:"waves_directory"`
}

// New creates a new web server instance around svc
func New(svc service.Service, opts Options) *Server {
	s := &Server{
		service: svc,
		port:    opts.Port,
		mdns:    opts.EnableMDNS,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The control page is served by this process; other origins
				// are accepted for local network tools and logged.
				origin := r.Header.Get("Origin")
				if origin != "" && !strings.HasSuffix(origin, "://"+r.Host) {
					slog.Warn("Accepting WebSocket from foreign origin", "origin", origin)
				}
				return true
			},
		},
		stopChan: make(chan struct{}),
	}

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/start", s.handleStart)
	s.mux.HandleFunc("/stop", s.handleStop)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/api/recordings", s.handleRecordings)
	s.mux.HandleFunc("/api/recordings/", s.handleRecordingDelete)
	s.mux.HandleFunc("/api/recordings/stream/", s.handleRecordingStream)
	s.mux.HandleFunc("/api/recordings/waveform/", s.handleWaveform)
	s.mux.HandleFunc("/api/devices", s.handleDevices)

	return s
}

// Handler returns the routed handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	localIP := getLocalIP()

	slog.Info("Starting antirec Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	if s.mdns {
		port, err := strconv.Atoi(s.port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", s.port, err)
		}
		name := discovery.DefaultServiceName()
		if cfg := s.service.GetConfig(); cfg != nil && cfg.Server.Name != "" {
			name = cfg.Server.Name
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: name,
			Port:        port,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			slog.Warn("Failed to start mDNS advertisement", "error", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:    ":" + s.port,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		slog.Info("Server shutting down")
	case err := <-errChan:
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	// hijacked websocket connections are not tracked by Shutdown
	s.service.Events().Close()
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	slog.Info("Server stopped cleanly")
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleIndex serves the control page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, indexHTML)
}

// handleStart starts a session
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	var req StartRequest
	body := http.MaxBytesReader(w, r.Body, maxStartBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid request body: %v", err), "operation", "start")
		return
	}

	slog.Debug("Start request received", "values", len(req.Values), "profile", req.Profile)

	if req.Values != nil {
		if err := perturb.Validate(req.Values); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "start")
			return
		}
	}

	if req.Profile != "" && req.Profile != s.service.GetConfig().Profile {
		if err := s.service.LoadProfile(req.Profile); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, engine.ErrSessionActive) {
				status = http.StatusConflict
			}
			s.sendErrorResponse(w, status, err.Error(), "profile", req.Profile, "operation", "profile_load_for_start")
			return
		}
	}

	var (
		info *engine.SessionInfo
		err  error
	)
	if req.Values != nil {
		info, err = s.service.Start(r.Context(), req.Values)
	} else {
		info, err = s.service.StartConfigured(r.Context())
	}
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, engine.ErrSessionActive):
			status = http.StatusConflict
		case errors.Is(err, perturb.ErrEmptySequence):
			status = http.StatusBadRequest
		}
		s.sendErrorResponse(w, status, fmt.Sprintf("Failed to start session: %v", err), "operation", "start")
		return
	}

	slog.Info("Server: session started", "session", info.ID, "timestamp", info.Timestamp)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Session started",
		"session": info,
	})
}

// handleStop stops the active session
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	info, err := s.service.Stop()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNoSession) {
			status = http.StatusConflict
		}
		s.sendErrorResponse(w, status, fmt.Sprintf("Failed to stop session: %v", err), "operation", "stop")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Session stopping",
		"session": info,
	})
}

// handleStatus returns the current state and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	status := s.service.GetStatus()
	response := StatusResponse{
		Status:    string(status.State),
		Message:   generateStatusMessage(status),
		Session:   status.Session,
		LastError: status.LastError,
		Config:    s.getResolvedConfigInfo(status.Backend),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleEvents streams audio_update messages over a WebSocket
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	hub := s.service.Events()
	sub := hub.Subscribe(events.DefaultBuffer)
	defer hub.Unsubscribe(sub)

	slog.Debug("Event subscriber connected", "subscriber", sub.ID, "remote", r.RemoteAddr)

	s.wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer s.wg.Done()
		defer close(done)
		s.clientWriter(conn, sub)
	}()

	// Clients send nothing; reading surfaces the close frame.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read error", "subscriber", sub.ID, "error", err)
			}
			break
		}
	}

	hub.Unsubscribe(sub)
	<-done

	slog.Debug("Event subscriber disconnected", "subscriber", sub.ID, "dropped", sub.Dropped())
}

// clientWriter sends events to one subscriber until the subscription ends
func (s *Server) clientWriter(conn *websocket.Conn, sub *events.Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeDeadline))
			return

		case update := <-sub.C:
			data, err := json.Marshal(events.NewAudioUpdate(update))
			if err != nil {
				slog.Warn("Error marshaling event", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Error writing event", "subscriber", sub.ID, "error", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// handleRecordings lists recorded sessions
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	list, err := s.service.ListRecordings()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list recordings: %v", err), "operation", "list_recordings")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RecordingsResponse{
		Recordings:     list,
		TotalCount:     len(list),
		WavesDirectory: s.service.GetConfig().WavesDirectory(),
	})
}

// handleRecordingDelete removes both files of a recording
func (s *Server) handleRecordingDelete(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodDelete) {
		return
	}

	ts, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/recordings/"), 10, 64)
	if err != nil || ts <= 0 {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid recording timestamp", "path", r.URL.Path)
		return
	}

	if err := s.service.DeleteRecording(ts); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, recordings.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, engine.ErrSessionActive):
			status = http.StatusConflict
		}
		s.sendErrorResponse(w, status, err.Error(), "timestamp", ts, "operation", "delete_recording")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Recording %d deleted", ts),
	})
}

// handleRecordingStream streams one WAV file
func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, "/api/recordings/stream/")
	filePath, ok := s.resolveRecording(w, filename)
	if !ok {
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "Error opening file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

// handleWaveform returns decoded peaks of one WAV file
func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, "/api/recordings/waveform/")
	buckets := recordings.DefaultBuckets
	if v := r.URL.Query().Get("buckets"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendErrorResponse(w, http.StatusBadRequest, "buckets must be a positive integer", "buckets", v)
			return
		}
		buckets = n
	}

	wf, err := s.service.Waveform(filename, buckets)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, recordings.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, recordings.ErrInvalidName):
			status = http.StatusBadRequest
		}
		s.sendErrorResponse(w, status, err.Error(), "file", filename, "operation", "waveform")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wf)
}

// handleDevices lists input and output devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	list, err := s.service.ListDevices()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list devices: %v", err), "operation", "list_devices")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// resolveRecording maps a file name to its path, writing the error response
// when it cannot
func (s *Server) resolveRecording(w http.ResponseWriter, filename string) (string, bool) {
	if filename == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return "", false
	}

	path, err := s.service.RecordingPath(filename)
	if err != nil {
		switch {
		case errors.Is(err, recordings.ErrNotFound):
			http.Error(w, "File not found", http.StatusNotFound)
		case errors.Is(err, recordings.ErrInvalidName):
			http.Error(w, "Invalid filename", http.StatusBadRequest)
		default:
			http.Error(w, "Error accessing file", http.StatusInternalServerError)
		}
		return "", false
	}
	return path, true
}

func (s *Server) getResolvedConfigInfo(backend string) *ResolvedConfigInfo {
	cfg := s.service.GetConfig()
	if cfg == nil {
		return nil
	}
	return &ResolvedConfigInfo{
		ActiveProfile:       cfg.Profile,
		Backend:             backend,
		DataDirectory:       cfg.DataDirectory,
		WavesDirectory:      cfg.WavesDirectory(),
		VirtualOutputDevice: cfg.Audio.VirtualOutputDevice,
		Selection:           cfg.Audio.Selection,
		RelayMode:           cfg.Relay.Mode,
		RelayCapacityMs:     cfg.Relay.CapacityMs,
		Perturbation:        cfg.Perturbation.ID,
		PerturbationKind:    cfg.Perturbation.Kind,
	}
}

// generateStatusMessage creates appropriate status messages based on current state
func generateStatusMessage(status service.Status) string {
	switch status.State {
	case engine.StateStreaming:
		if status.Session != nil {
			return fmt.Sprintf("Perturbing since %s", status.Session.StartedAt.Format("15:04:05"))
		}
		return "Perturbing"
	case engine.StateNegotiating:
		return "Opening audio devices"
	case engine.StateDraining:
		return "Finalizing recordings"
	case engine.StateFailed:
		if status.LastError != "" {
			return status.LastError
		}
		return "An error occurred during the session"
	default:
		if status.LastError != "" {
			return status.LastError
		}
		return ""
	}
}

// allowMethod writes the JSON method error unless r uses method
func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
