package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"flowboard/internal/log"
	"flowboard/internal/projection"
	"flowboard/internal/tenant"
	"flowboard/internal/timerange"
)

// webFiles will be injected from main package
var webFiles embed.FS

// SetWebFiles sets the embedded web files
func SetWebFiles(files embed.FS) {
	webFiles = files
}

// DefaultRefreshInterval is how often connected clients get a new snapshot.
const DefaultRefreshInterval = 60 * time.Second

// ServerOptions configure a Server.
type ServerOptions struct {
	Port            int
	RefreshInterval time.Duration
	Version         string
	Logger          log.Logger
}

// Server serves the dashboard UI, the JSON API and WebSocket updates.
type Server struct {
	port            int
	version         string
	refreshInterval time.Duration
	router          *mux.Router
	server          *http.Server
	upgrader        websocket.Upgrader
	service         *Service
	logger          log.Logger

	clients      map[string]*client
	clientsMutex sync.RWMutex

	refreshNow chan struct{}
}

// NewServer creates a dashboard server backed by service.
func NewServer(service *Service, opts ServerOptions) *Server {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Global()
	}
	s := &Server{
		port:            opts.Port,
		version:         opts.Version,
		refreshInterval: opts.RefreshInterval,
		router:          mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dashboard
			},
		},
		service:    service,
		logger:     opts.Logger,
		clients:    make(map[string]*client),
		refreshNow: make(chan struct{}, 1),
	}
	s.setupRoutes()
	service.Session().OnSwitch(func(scope *tenant.Scope) {
		s.sendAll(Message{Type: MessageTenant, TenantID: scope.Tenant.ID})
		s.TriggerRefresh()
	})
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	if staticFS, err := fs.Sub(webFiles, "web/static"); err == nil {
		s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/",
			http.FileServer(http.FS(staticFS))))
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ranges", s.handleRanges).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/executions", s.handleExecutions).Methods(http.MethodGet)
	api.HandleFunc("/certificates", s.handleCertificates).Methods(http.MethodGet)
	api.HandleFunc("/worker", s.handleWorker).Methods(http.MethodGet)
	api.HandleFunc("/workflows", s.handleWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/tenants", s.handleListTenants).Methods(http.MethodGet)
	api.HandleFunc("/tenants", s.handleAddTenant).Methods(http.MethodPost)
	api.HandleFunc("/tenants/{id}", s.handleUpdateTenant).Methods(http.MethodPut)
	api.HandleFunc("/tenants/{id}", s.handleRemoveTenant).Methods(http.MethodDelete)
	api.HandleFunc("/tenants/{id}/activate", s.handleActivateTenant).Methods(http.MethodPost)
	api.HandleFunc("/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", s.handlePutPreferences).Methods(http.MethodPut)

	// WebSocket for real-time updates
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.broadcastLoop(ctx)

	s.logger.Info("dashboard server starting", "addr", ln.Addr().String())
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the dashboard server
func (s *Server) Stop(ctx context.Context) error {
	s.clientsMutex.Lock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
	s.clientsMutex.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// TriggerRefresh asks the broadcast loop to refresh immediately.
func (s *Server) TriggerRefresh() {
	select {
	case s.refreshNow <- struct{}{}:
	default:
	}
}

// handleDashboard serves the main dashboard page
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmplContent, err := webFiles.ReadFile("web/templates/dashboard.html")
	if err != nil {
		http.Error(w, fmt.Sprintf("Template not found: %v", err), http.StatusInternalServerError)
		return
	}

	tmpl, err := template.New("dashboard").Parse(string(tmplContent))
	if err != nil {
		http.Error(w, fmt.Sprintf("Template parsing error: %v", err), http.StatusInternalServerError)
		return
	}

	session := s.service.Session()
	data := struct {
		Version   string
		Tenant    string
		DateRange timerange.Range
		Theme     string
		Ranges    []timerange.Option
	}{
		Version:   s.version,
		Tenant:    session.Current().Tenant.DisplayName,
		DateRange: session.DateRange(),
		Theme:     session.Theme(),
		Ranges:    timerange.Options(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("failed to render dashboard", "error", err)
	}
}

// handleWebSocket handles WebSocket connections for real-time updates
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	rng := s.service.Session().DateRange()
	if v, ok := timerange.Parse(r.URL.Query().Get("range")); ok {
		rng = v
	}
	c := newClient(uuid.NewString(), conn, rng)

	s.clientsMutex.Lock()
	s.clients[c.id] = c
	total := len(s.clients)
	s.clientsMutex.Unlock()
	s.logger.Info("websocket client connected", "client", c.id, "total", total)

	go c.writeLoop()
	s.pushSnapshot(context.Background(), c)

	// Keep connection alive and handle client messages
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		s.handleClientMessage(c, msg)
	}

	s.removeClient(c)
}

func (s *Server) handleClientMessage(c *client, msg clientMessage) {
	switch msg.Type {
	case "range":
		rng, ok := timerange.Parse(msg.Range)
		if !ok {
			c.send(Message{Type: MessageError, Error: fmt.Sprintf("unknown range %q", msg.Range)})
			return
		}
		c.setRange(rng)
		s.pushSnapshot(context.Background(), c)
	case "certificates":
		go s.streamCertificates(c, msg.Query)
	default:
		c.send(Message{Type: MessageError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// streamCertificates pushes the lookup progress to one client.
func (s *Server) streamCertificates(c *client, query string) {
	rng := c.currentRange()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	tenantID := s.service.Session().Current().Tenant.ID
	_, err := s.service.Certificates(ctx, rng, func(p projection.Progress) {
		view := NewCertificatesView(tenantID, rng, query, p)
		s.deliver(c, Message{Type: MessageCertificates, Certificates: &view})
	})
	if err != nil && ctx.Err() == nil {
		c.send(Message{Type: MessageError, Error: err.Error()})
	}
}

func (s *Server) pushSnapshot(ctx context.Context, c *client) {
	rng := c.currentRange()
	snap, ok := s.service.Latest(rng)
	if !ok {
		var err error
		snap, err = s.service.Snapshot(ctx, rng)
		if err != nil {
			c.send(Message{Type: MessageError, Error: err.Error()})
			return
		}
	}
	s.deliver(c, Message{Type: MessageSnapshot, Snapshot: snap})
}

// deliver sends msg unless it carries data of a tenant that is no longer
// active.
func (s *Server) deliver(c *client, msg Message) bool {
	active := s.service.Session().Current().Tenant.ID
	if msg.Snapshot != nil && msg.Snapshot.TenantID != active {
		s.logger.Debug("dropping stale snapshot", "client", c.id, "tenant", msg.Snapshot.TenantID, "active", active)
		return false
	}
	if msg.Certificates != nil && msg.Certificates.TenantID != active {
		s.logger.Debug("dropping stale certificates", "client", c.id, "tenant", msg.Certificates.TenantID, "active", active)
		return false
	}
	c.send(msg)
	return true
}

func (s *Server) removeClient(c *client) {
	s.clientsMutex.Lock()
	delete(s.clients, c.id)
	total := len(s.clients)
	s.clientsMutex.Unlock()
	c.close()
	s.logger.Info("websocket client disconnected", "client", c.id, "total", total)
}

// broadcastLoop refreshes the ranges clients watch and pushes the results
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.refreshNow:
		}
		s.broadcast(ctx)
	}
}

func (s *Server) broadcast(ctx context.Context) {
	s.clientsMutex.RLock()
	clients := make([]*client, 0, len(s.clients))
	ranges := []timerange.Range{s.service.Session().DateRange()}
	for _, c := range s.clients {
		clients = append(clients, c)
		ranges = append(ranges, c.currentRange())
	}
	s.clientsMutex.RUnlock()

	snaps := s.service.Refresh(ctx, ranges)
	for _, c := range clients {
		if snap, ok := snaps[c.currentRange()]; ok {
			s.deliver(c, Message{Type: MessageSnapshot, Snapshot: snap})
		}
	}
}

// sendAll queues msg for every connected client.
func (s *Server) sendAll(msg Message) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	for _, c := range s.clients {
		c.send(msg)
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}
