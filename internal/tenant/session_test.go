package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowboard/internal/cache"
	"flowboard/internal/log"
	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

func newTestSession(t *testing.T, prefs Preferences) (*Session, *MemoryStore, *cache.Cache) {
	t.Helper()
	store := &MemoryStore{prefs: prefs}
	c := cache.New()
	s, err := NewSession(context.Background(), store, c, log.Nop{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, store, c
}

func TestSession_InitialScope(t *testing.T) {
	s, _, _ := newTestSession(t, Preferences{Tenants: tenants("a", "b"), ActiveTenant: "b"})
	cur := s.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "b", cur.Tenant.ID)
	assert.Equal(t, "b", cur.Creds.TenantID)
	assert.Equal(t, "k-b", cur.Creds.APIKey)
	assert.True(t, cur.Valid())
	assert.NoError(t, cur.Context().Err())
}

func TestSession_DefaultKeys(t *testing.T) {
	store := &MemoryStore{}
	s, err := NewSession(context.Background(), store, nil, log.Nop{}, WithDefaultKeys("api", "sub"))
	require.NoError(t, err)
	defer s.Close()

	cur := s.Current()
	assert.Equal(t, DefaultTenantID, cur.Tenant.ID)
	assert.Equal(t, "api", cur.Creds.APIKey)
	assert.Equal(t, "sub", cur.Creds.SubscriptionKey)

	require.NoError(t, s.SetTheme(ThemeDark))
	saved, err := store.Load()
	require.NoError(t, err)
	require.Len(t, saved.Tenants, 1)
	assert.Empty(t, saved.Tenants[0].APIKey)
	assert.Empty(t, saved.Tenants[0].SubscriptionKey)
}

func TestSession_SwitchCancelsAndClears(t *testing.T) {
	s, store, c := newTestSession(t, Preferences{Tenants: tenants("a", "b"), ActiveTenant: "a"})
	old := s.Current()
	c.Set(cache.Key{Tenant: "a", Kind: cache.KindReport, ID: "today"}, 1, time.Minute)

	var notified *Scope
	s.OnSwitch(func(sc *Scope) { notified = sc })

	require.NoError(t, s.Switch("b"))

	assert.ErrorIs(t, old.Context().Err(), context.Canceled)
	cur := s.Current()
	assert.Equal(t, "b", cur.Tenant.ID)
	assert.NoError(t, cur.Context().Err())
	assert.Equal(t, 0, c.Len())
	assert.Same(t, cur, notified)

	prefs, _ := store.Load()
	assert.Equal(t, "b", prefs.ActiveTenant)
}

func TestSession_SwitchUnknown(t *testing.T) {
	s, store, _ := newTestSession(t, Preferences{Tenants: tenants("a")})
	before := s.Current()
	assert.ErrorIs(t, s.Switch("zzz"), ErrNotFound)
	assert.Same(t, before, s.Current())
	assert.Equal(t, 0, store.Saves())
}

func TestSession_UpdateActiveRefreshesCredentials(t *testing.T) {
	s, _, c := newTestSession(t, Preferences{Tenants: tenants("a", "b"), ActiveTenant: "a"})
	c.Set(cache.Key{Tenant: "a", Kind: cache.KindWorker, ID: "1"}, 1, time.Minute)
	c.Set(cache.Key{Tenant: "b", Kind: cache.KindWorker, ID: "1"}, 1, time.Minute)

	require.NoError(t, s.Update(types.TenantConfig{ID: "a", DisplayName: "A", APIKey: "rotated"}))
	assert.Equal(t, "rotated", s.Current().Creds.APIKey)
	assert.Equal(t, 1, c.Len())
}

func TestSession_RemoveActive(t *testing.T) {
	s, store, _ := newTestSession(t, Preferences{Tenants: tenants("a", "b"), ActiveTenant: "b"})
	old := s.Current()

	require.NoError(t, s.Remove("b"))
	assert.Equal(t, "a", s.Current().Tenant.ID)
	assert.Error(t, old.Context().Err())

	prefs, _ := store.Load()
	assert.Len(t, prefs.Tenants, 1)
	assert.Equal(t, "a", prefs.ActiveTenant)
}

func TestSession_AddAfterRemovingAll(t *testing.T) {
	s, _, _ := newTestSession(t, Preferences{Tenants: tenants("a"), ActiveTenant: "a"})
	require.NoError(t, s.Remove("a"))
	assert.False(t, s.Current().Valid())

	added, err := s.Add(types.TenantConfig{DisplayName: "Fresh", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, added.ID, s.Current().Tenant.ID)
	assert.True(t, s.Current().Valid())
}

func TestSession_Preferences(t *testing.T) {
	s, store, _ := newTestSession(t, Preferences{Tenants: tenants("a")})
	assert.Equal(t, timerange.Today, s.DateRange())

	require.NoError(t, s.SetDateRange(timerange.Last6Hours))
	require.NoError(t, s.SetTheme(ThemeLight))
	assert.Error(t, s.SetDateRange("fortnight"))
	assert.Error(t, s.SetTheme("neon"))

	prefs, _ := store.Load()
	assert.Equal(t, timerange.Last6Hours, prefs.DateRange)
	assert.Equal(t, ThemeLight, prefs.Theme)
	assert.Equal(t, prefs, s.Preferences())
}
