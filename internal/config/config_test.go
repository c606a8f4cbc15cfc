package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAMLFallerTilbakePaaDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  jwt_secret: hysj\n"))
	require.NoError(t, err)
	assert.Equal(t, "hysj", cfg.Server.JWTSecret)
	assert.Equal(t, "127.0.0.1:8200", cfg.Server.Addr)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, time.Hour, cfg.Jobber.FristPeriode)
}

func TestFromYAMLValiderer(t *testing.T) {
	_, err := FromYAML([]byte("jobber:\n  frist_periode: -1h\n"))
	assert.Error(t, err)

	_, err = FromYAML([]byte("server:\n  addr: \"\"\n"))
	assert.Error(t, err)

	_, err = FromYAML([]byte("ikke gyldig: [yaml"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	workspace := t.TempDir()

	cfg, err := Load(workspace)
	require.NoError(t, err, "manglende fil gir defaults")
	assert.Equal(t, Default(), cfg)

	innhold := "server:\n  addr: 0.0.0.0:9000\nbeslutter:\n  url: http://beslutter.local\n"
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "saksflyt.yml"), []byte(innhold), 0o644))

	cfg, err = Load(workspace)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "http://beslutter.local", cfg.Beslutter.URL)
}
