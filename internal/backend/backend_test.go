package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywheel/pywheel/internal/config"
)

func TestResolve(t *testing.T) {
	declared := config.Project{
		BuildSystem: config.BuildSystem{
			BuildBackend: "flit_core.buildapi",
			BackendPath:  []string{"src"},
		},
	}

	t.Run("explicit wins", func(t *testing.T) {
		b, path, err := Resolve(declared, "hatchling.build", DefaultFallback)
		require.NoError(t, err)
		assert.Equal(t, "hatchling.build", b)
		assert.Nil(t, path)
	})

	t.Run("declared backend", func(t *testing.T) {
		b, path, err := Resolve(declared, "", DefaultFallback)
		require.NoError(t, err)
		assert.Equal(t, "flit_core.buildapi", b)
		assert.Equal(t, []string{"src"}, path)
	})

	t.Run("fallback", func(t *testing.T) {
		b, _, err := Resolve(config.Project{}, "", DefaultFallback)
		require.NoError(t, err)
		assert.Equal(t, DefaultFallback, b)
	})

	t.Run("no fallback allowed", func(t *testing.T) {
		_, _, err := Resolve(config.Project{}, "", "")
		assert.Error(t, err)
	})
}

func TestBuilderSpec(t *testing.T) {
	b := Builder{
		Backend:     "flit_core.buildapi",
		BackendPath: []string{"src"},
		Prefix:      "/opt/py",
		ConfigJSON:  `{"--global-option": ["-q"]}`,
	}
	spec, err := b.spec("/tmp/wheels")
	require.NoError(t, err)
	assert.Equal(t, "flit_core.buildapi", spec.Backend)
	assert.Equal(t, "/tmp/wheels", spec.WheelDir)
	assert.Equal(t, "/opt/py", spec.Prefix)
	assert.False(t, spec.AllowCompressed)
	assert.JSONEq(t, `{"--global-option": ["-q"]}`, string(spec.Config))

	b.AllowCompressed = true
	spec, err = b.spec("/tmp/wheels")
	require.NoError(t, err)
	assert.True(t, spec.AllowCompressed)
}

func TestBuilderSpec_BadConfigJSON(t *testing.T) {
	_, err := Builder{Backend: "x", ConfigJSON: `["not", "an", "object"]`}.spec("/tmp")
	assert.Error(t, err)

	_, err = Builder{Backend: "x", ConfigJSON: `{broken`}.spec("/tmp")
	assert.Error(t, err)
}
