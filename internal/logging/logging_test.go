package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	log, err := New(Options{Level: "info", File: path, Service: "khata-api"})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.Contains(t, string(b), `"service":"khata-api"`)
}
