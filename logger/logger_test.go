package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		name     string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{" error ", ErrorLevel},
		{"fatal", FatalLevel},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		require.NoError(err, tt.name)
		require.Equal(tt.expected, level, tt.name)
	}

	_, err := ParseLevel("verbose")
	require.Error(err)
}

func TestSlogLogger_JSON(t *testing.T) {
	t.Setenv("ENV", "production")
	require := require.New(t)

	var buf bytes.Buffer
	l := NewSlogWithWriter(&buf, InfoLevel, false)
	require.Equal(InfoLevel, l.Level())

	l.Debug("hidden")
	require.Zero(buf.Len())

	l.With("component", "client").Info("connected", "url", "ws://localhost")

	var rec map[string]any
	require.NoError(json.Unmarshal(buf.Bytes(), &rec))
	require.Equal("connected", rec["msg"])
	require.Equal("client", rec["component"])
	require.Equal("ws://localhost", rec["url"])
	require.Contains(rec, "ts")
	require.NotContains(rec, "time")

	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, l.Level())
	buf.Reset()
	l.Debug("visible")
	require.Contains(buf.String(), "visible")
}

func TestDefaultLogger(t *testing.T) {
	require := require.New(t)

	orig := GetLogger()
	defer SetLogger(orig)

	m := NewMockLogger()
	m.On("Warn", "reconnecting", mock.Anything).Return().Once()
	SetLogger(m)
	SetLogger(nil)

	require.Same(m, GetLogger())
	Warn("reconnecting", "attempt", 1)
	m.AssertExpectations(t)
	require.Equal([]string{"reconnecting"}, m.Messages("Warn"))
}

func TestMockLogger_AcceptAll(t *testing.T) {
	require := require.New(t)

	m := NewMockLogger().AcceptAll(DebugLevel)
	l := m.With("url", "ws://127.0.0.1:83/websocket")
	require.Same(m, l)
	require.Equal(DebugLevel, l.Level())

	l.Info("connecting", "method", "connectOnce")
	l.Error("server error", "errorCode", 4001)
	l.Info("connection ready")

	require.Equal([]string{"connecting", "connection ready"}, m.Messages("Info"))
	require.Equal([]string{"server error"}, m.Messages("Error"))
	require.Empty(m.Messages("Warn"))
}
