package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("STORE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, GuardLocal, cfg.Guard.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Engine.EscalationThreshold)
	assert.Equal(t, 3, cfg.Engine.MaxRounds)
	assert.Equal(t, "STL_MO", cfg.Engine.DefaultHub)
	assert.Equal(t, "KC_MO", cfg.Engine.FallbackHub)
	assert.Equal(t, []string{"IL", "Illinois"}, cfg.Engine.RegionOverrideMarkers)
	assert.Equal(t, 100, cfg.Engine.MaxDailyAppointments)
	assert.Equal(t, 24*time.Hour, cfg.Engine.ClaimExpiry)
	assert.Equal(t, "America/Los_Angeles", cfg.Engine.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/dispatch")
	t.Setenv("ESCALATION_MINUTES", "5")
	t.Setenv("ESCALATION_SWEEP_INTERVAL", "30s")
	t.Setenv("REGION_OVERRIDE_MARKERS", " IL , Ill. ,")
	t.Setenv("MARK_UNASSIGNABLE", "true")
	t.Setenv("NOTIFICATION_DELAY_SECONDS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Engine.EscalationThreshold)
	assert.Equal(t, 30*time.Second, cfg.Engine.SweepInterval)
	assert.Equal(t, []string{"IL", "Ill."}, cfg.Engine.RegionOverrideMarkers)
	assert.True(t, cfg.Engine.MarkUnassignable)
	assert.Equal(t, 3*time.Second, cfg.Notification.Delay)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := map[string]map[string]string{
		"quickbase without credentials": {"STORE_BACKEND": "quickbase"},
		"postgres without dsn":          {"STORE_BACKEND": "postgres", "POSTGRES_DSN": ""},
		"nats guard without url":        {"CLAIM_GUARD": "nats", "NATS_URL": ""},
		"unknown guard":                 {"CLAIM_GUARD": "zookeeper"},
		"bad timezone":                  {"TIMEZONE": "Mars/Olympus"},
		"zero rounds":                   {"ESCALATION_ROUNDS": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

const sampleDirectory = `
partners:
  - name: Alpha
    hubs: [STL_MO]
    priority: 1
  - name: Bravo
    hubs: [STL_MO, KC_MO]
    capacity: 5
    active: false
hubs:
  - code: STL_MO
    name: St. Louis
  - code: KC_MO
    partners: [Bravo]
    capacity: 10
`

func TestParseDirectoryAppliesDefaults(t *testing.T) {
	partners, hubs, err := ParseDirectory([]byte(sampleDirectory))
	require.NoError(t, err)
	require.Len(t, partners, 2)
	require.Len(t, hubs, 2)

	alpha := partners[0]
	assert.Equal(t, "Alpha", alpha.Name)
	assert.Equal(t, 20, alpha.Capacity)
	assert.Equal(t, 1, alpha.Priority)
	assert.True(t, alpha.Active)
	assert.Equal(t, 50, alpha.MaxDistance)

	bravo := partners[1]
	assert.Equal(t, 5, bravo.Capacity)
	assert.Equal(t, 5, bravo.Priority)
	assert.False(t, bravo.Active)

	assert.Equal(t, 100, hubs[0].Capacity)
	assert.True(t, hubs[0].Active)
	assert.Equal(t, []string{"Bravo"}, hubs[1].Partners)
}

func TestParseDirectoryValidation(t *testing.T) {
	tests := map[string]string{
		"duplicate partner":  "partners:\n  - name: A\n  - name: A\n",
		"missing name":       "partners:\n  - hubs: [X]\n",
		"negative capacity":  "partners:\n  - name: A\n    capacity: -1\n",
		"unknown allow-list": "partners:\n  - name: A\nhubs:\n  - code: X\n    partners: [Z]\n",
		"duplicate hub":      "hubs:\n  - code: X\n  - code: X\n",
		"malformed yaml":     "partners: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseDirectory([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadDirectoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDirectory), 0o600))

	partners, _, err := LoadDirectory(path)
	require.NoError(t, err)
	assert.Len(t, partners, 2)

	_, _, err = LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
