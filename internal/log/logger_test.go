package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", InfoLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" dbg ", DebugLevel, false},
		{"err", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WarnLevel, TextFormat, &buf)

	l.Info("hidden")
	l.Warn("shown", "tenant", "acme")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "tenant=acme")

	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestSlogLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(InfoLevel, JSONFormat, &buf).With("component", "test")
	l.Error("boom", "status", 502)

	line := strings.TrimSpace(buf.String())
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "boom", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "test", rec["component"])
	assert.Equal(t, float64(502), rec["status"])
}

func TestGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	SetGlobal(Nop{})
	assert.Equal(t, Nop{}, Global())
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, JSONFormat, ParseFormat("JSON"))
	assert.Equal(t, TextFormat, ParseFormat(""))
	assert.Equal(t, TextFormat, ParseFormat("yaml"))
}
