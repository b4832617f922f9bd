// Package tenant manages the configured tenants, the active selection and
// the persisted user preferences.
package tenant

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"flowboard/internal/types"
)

var (
	ErrNotFound  = errors.New("tenant not found")
	ErrDuplicate = errors.New("tenant already exists")
	ErrInvalid   = errors.New("invalid tenant")
)

// DefaultTenantID is used when no tenant has been configured.
const DefaultTenantID = "legendary-plumbing-default"

// DefaultTenant returns the built-in tenant. Its keys come from configuration.
func DefaultTenant() types.TenantConfig {
	return types.TenantConfig{
		ID:          DefaultTenantID,
		DisplayName: "Legendary Plumbing",
		WorkerID:    215,
	}
}

// Registry is the ordered list of tenants plus the active selection.
type Registry struct {
	mu       sync.RWMutex
	tenants  []types.TenantConfig
	activeID string
}

// NewRegistry builds a registry. An empty list yields the default tenant and
// an unknown activeID falls back to the first tenant.
func NewRegistry(tenants []types.TenantConfig, activeID string) *Registry {
	if len(tenants) == 0 {
		tenants = []types.TenantConfig{DefaultTenant()}
	}
	r := &Registry{tenants: append([]types.TenantConfig(nil), tenants...)}
	if r.indexOf(activeID) >= 0 {
		r.activeID = activeID
	} else {
		r.activeID = r.tenants[0].ID
	}
	return r
}

func (r *Registry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range r.tenants {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// List returns a copy of all tenants in insertion order.
func (r *Registry) List() []types.TenantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.TenantConfig(nil), r.tenants...)
}

// Get returns the tenant with id.
func (r *Registry) Get(id string) (types.TenantConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.tenants[i], true
	}
	return types.TenantConfig{}, false
}

// Active returns the active tenant. It is false only when the list is empty.
func (r *Registry) Active() (types.TenantConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(r.activeID); i >= 0 {
		return r.tenants[i], true
	}
	return types.TenantConfig{}, false
}

// ActiveID returns the active tenant id, or "" when there is none.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// SetActive selects the tenant with id.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.activeID = id
	return nil
}

// Add appends a tenant. A missing id is generated.
func (r *Registry) Add(t types.TenantConfig) (types.TenantConfig, error) {
	t.ID = strings.TrimSpace(t.ID)
	t.DisplayName = strings.TrimSpace(t.DisplayName)
	if t.DisplayName == "" {
		return types.TenantConfig{}, fmt.Errorf("%w: display name is required", ErrInvalid)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(t.ID) >= 0 {
		return types.TenantConfig{}, fmt.Errorf("%w: %s", ErrDuplicate, t.ID)
	}
	r.tenants = append(r.tenants, t)
	if r.activeID == "" {
		r.activeID = t.ID
	}
	return t, nil
}

// Update replaces the tenant with the same id.
func (r *Registry) Update(t types.TenantConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(t.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	r.tenants[i] = t
	return nil
}

// Remove deletes the tenant with id. When it was active, the first remaining
// tenant becomes active. The returned id is the active tenant afterwards.
func (r *Registry) Remove(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return r.activeID, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.tenants = append(r.tenants[:i:i], r.tenants[i+1:]...)
	if r.activeID == id {
		r.activeID = ""
		if len(r.tenants) > 0 {
			r.activeID = r.tenants[0].ID
		}
	}
	return r.activeID, nil
}
