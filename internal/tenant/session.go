package tenant

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"flowboard/internal/api"
	"flowboard/internal/cache"
	"flowboard/internal/log"
	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

// Scope is an immutable snapshot of the active tenant. Its context is
// cancelled when another tenant becomes active.
type Scope struct {
	Tenant types.TenantConfig
	Creds  api.Credentials

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the scope is replaced or the session closes.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Valid reports whether the scope has a tenant with credentials.
func (s *Scope) Valid() bool {
	return s != nil && s.Tenant.ID != "" && s.Creds.Valid()
}

// Session owns the registry, preferences and the active scope.
type Session struct {
	parent   context.Context
	registry *Registry
	store    Store
	cache    *cache.Cache
	logger   log.Logger

	scope atomic.Pointer[Scope]

	// serializes changes that must be persisted together
	mu        sync.Mutex
	dateRange timerange.Range
	theme     string

	listeners []func(*Scope)

	// keys supplied by configuration, never written to the store
	defaultKeys sessionOptions
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	apiKey          string
	subscriptionKey string
}

// WithDefaultKeys supplies keys for the built-in tenant when it has none.
func WithDefaultKeys(apiKey, subscriptionKey string) SessionOption {
	return func(o *sessionOptions) {
		o.apiKey = apiKey
		o.subscriptionKey = subscriptionKey
	}
}

// NewSession loads preferences from store and activates the stored tenant.
func NewSession(parent context.Context, store Store, c *cache.Cache, logger log.Logger, opts ...SessionOption) (*Session, error) {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = log.Global()
	}
	if c == nil {
		c = cache.New()
	}
	prefs, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	s := &Session{
		parent:    parent,
		registry:  NewRegistry(prefs.Tenants, prefs.ActiveTenant),
		store:     store,
		cache:     c,
		logger:    logger,
		dateRange: prefs.DateRange,
		theme:     prefs.Theme,
	}
	if o.apiKey != "" || o.subscriptionKey != "" {
		if t, ok := s.registry.Get(DefaultTenantID); ok && !api.CredentialsFor(t).Valid() {
			t.APIKey, t.SubscriptionKey = o.apiKey, o.subscriptionKey
			if err := s.registry.Update(t); err != nil {
				return nil, fmt.Errorf("failed to apply default tenant keys: %w", err)
			}
			s.defaultKeys = o
		}
	}
	s.install()
	return s, nil
}

// Registry exposes the tenant list.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Cache returns the response cache shared by the session.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// Current returns the active scope. It never returns nil after NewSession.
func (s *Session) Current() *Scope {
	return s.scope.Load()
}

// OnSwitch registers fn to run after a new scope is installed.
func (s *Session) OnSwitch(fn func(*Scope)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// install publishes a scope for the registry's active tenant and cancels the
// previous one.
func (s *Session) install() *Scope {
	t, _ := s.registry.Active()
	ctx, cancel := context.WithCancel(s.parent)
	next := &Scope{Tenant: t, Creds: api.CredentialsFor(t), ctx: ctx, cancel: cancel}
	if prev := s.scope.Swap(next); prev != nil {
		prev.cancel()
	}
	return next
}

func (s *Session) notify(scope *Scope) {
	s.mu.Lock()
	listeners := append([]func(*Scope){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(scope)
	}
}

// Switch activates tenant id, aborts in-flight work of the previous tenant and
// drops every cached response.
func (s *Session) Switch(id string) error {
	s.mu.Lock()
	if err := s.registry.SetActive(id); err != nil {
		s.mu.Unlock()
		return err
	}
	scope := s.install()
	s.cache.Clear()
	err := s.persistLocked()
	s.mu.Unlock()

	s.logger.Info("active tenant switched", "tenant", id)
	s.notify(scope)
	return err
}

// Add registers a tenant and persists it.
func (s *Session) Add(t types.TenantConfig) (types.TenantConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added, err := s.registry.Add(t)
	if err != nil {
		return types.TenantConfig{}, err
	}
	if s.Current().Tenant.ID != s.registry.ActiveID() {
		s.install()
	}
	return added, s.persistLocked()
}

// Update replaces a tenant. When it is the active one its credentials are
// re-snapshotted and its cached responses dropped.
func (s *Session) Update(t types.TenantConfig) error {
	s.mu.Lock()
	if err := s.registry.Update(t); err != nil {
		s.mu.Unlock()
		return err
	}
	var scope *Scope
	if s.registry.ActiveID() == t.ID {
		scope = s.install()
		s.cache.InvalidateTenant(t.ID)
	}
	err := s.persistLocked()
	s.mu.Unlock()

	if scope != nil {
		s.notify(scope)
	}
	return err
}

// Remove deletes a tenant. Removing the active tenant activates the first
// remaining one.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	prevActive := s.registry.ActiveID()
	activeID, err := s.registry.Remove(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.cache.InvalidateTenant(id)
	var scope *Scope
	if activeID != prevActive {
		scope = s.install()
		s.cache.Clear()
	}
	err = s.persistLocked()
	s.mu.Unlock()

	if scope != nil {
		s.logger.Info("active tenant removed", "removed", id, "active", activeID)
		s.notify(scope)
	}
	return err
}

// DateRange returns the persisted range selection.
func (s *Session) DateRange() timerange.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dateRange
}

// SetDateRange persists a new range selection.
func (s *Session) SetDateRange(r timerange.Range) error {
	if !r.Known() {
		return fmt.Errorf("unknown date range %q", r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dateRange = r
	return s.persistLocked()
}

// Theme returns the persisted theme, or "" for the system default.
func (s *Session) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetTheme persists the theme.
func (s *Session) SetTheme(theme string) error {
	if theme != "" && theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("unknown theme %q", theme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	return s.persistLocked()
}

// Preferences returns the current persisted view.
func (s *Session) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferencesLocked()
}

func (s *Session) preferencesLocked() Preferences {
	tenants := s.registry.List()
	for i, t := range tenants {
		if t.ID == DefaultTenantID && t.APIKey == s.defaultKeys.apiKey && t.SubscriptionKey == s.defaultKeys.subscriptionKey {
			tenants[i].APIKey, tenants[i].SubscriptionKey = "", ""
		}
	}
	return Preferences{
		Tenants:      tenants,
		ActiveTenant: s.registry.ActiveID(),
		DateRange:    s.dateRange,
		Theme:        s.theme,
	}
}

func (s *Session) persistLocked() error {
	if err := s.store.Save(s.preferencesLocked()); err != nil {
		s.logger.Error("failed to save preferences", "error", err)
		return err
	}
	return nil
}

// Close cancels the active scope.
func (s *Session) Close() {
	if cur := s.scope.Load(); cur != nil {
		cur.cancel()
	}
}
