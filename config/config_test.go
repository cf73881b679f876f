package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexar-dev/plexar/config"
)

func TestConfigLoad(t *testing.T) {
	t.Run("MissingFileReturnsDefaults", func(t *testing.T) {
		config.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, config.DefaultConfig, cfg)
	})

	t.Run("FullConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
instance_id: 123e4567-e89b-12d3-a456-426614174000
verbose: true
max_redirects: 5
allowed_cache_modes: [no-store, no-cache]
disable_verb_helpers: true
enable_extra_handlers: true
enable_rpc_methods: true
`), 0644))
		config.ConfigFile = path

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, &config.Config{
			InstanceID:          "123e4567-e89b-12d3-a456-426614174000",
			Verbose:             true,
			MaxRedirects:        5,
			AllowedCacheModes:   []string{"no-store", "no-cache"},
			DisableVerbHelpers:  true,
			EnableExtraHandlers: true,
			EnableRPCMethods:    true,
		}, cfg)
	})

	t.Run("MaxRedirectsDefaulted", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("verbose: false\n"), 0644))
		config.ConfigFile = path

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.MaxRedirects)
	})

	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))
		config.ConfigFile = path

		_, err := config.Load()
		require.Error(t, err)
	})
}

func TestConfigStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	config.ConfigFile = path

	want := &config.Config{
		InstanceID:   uuid.NewString(),
		MaxRedirects: 10,
	}
	require.NoError(t, config.Store(want))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, want, cfg)
}
