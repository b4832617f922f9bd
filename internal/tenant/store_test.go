package tenant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowboard/internal/timerange"
)

func TestFileStore_MissingFileGivesDefaults(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "prefs.yaml"))
	prefs, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, prefs.Tenants)
	assert.Equal(t, timerange.Today, prefs.DateRange)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	s := NewFileStore(path)

	in := Preferences{
		Tenants:      tenants("a", "b"),
		ActiveTenant: "b",
		DateRange:    timerange.LastHour,
		Theme:        ThemeDark,
	}
	require.NoError(t, s.Save(in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "active_tenant: b")
	assert.Contains(t, string(raw), "date_range: last hour")
	assert.Contains(t, string(raw), "display_name: Tenant a")

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileStore_NormalizesUnknownValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("date_range: fortnight\ntheme: neon\n"), 0o600))

	prefs, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, timerange.Today, prefs.DateRange)
	assert.Equal(t, "", prefs.Theme)
}

func TestFileStore_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants: [unterminated"), 0o600))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}
