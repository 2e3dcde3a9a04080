package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefaultTOMLParses(t *testing.T) {
	out := RenderDefaultTOML()
	assert.Contains(t, out, "[listen]\n")
	assert.Contains(t, out, "network = \"unix\"")

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(out)))
	for _, o := range GetConfigOptions() {
		assert.True(t, v.IsSet(o.Key), "missing %s", o.Key)
	}
}

func TestUpdateTOMLUpToDate(t *testing.T) {
	out := RenderDefaultTOML()
	updated, changed := UpdateTOML(out)
	assert.False(t, changed)
	assert.Equal(t, out, updated)
}

func TestUpdateTOMLMergesAndComments(t *testing.T) {
	existing := "[listen]\nnetwork = \"tcp\"\nbacklog = 5\n"
	updated, changed := UpdateTOML(existing)
	require.True(t, changed)

	assert.Contains(t, updated, "# OUTDATED: option removed from config schema\n# backlog = 5")
	assert.Contains(t, updated, "network = \"tcp\"")
	assert.Contains(t, updated, "[server]")

	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(updated)))
	assert.Equal(t, "tcp", v.GetString("listen.network"))
	assert.True(t, v.IsSet("listen.addr"))
	assert.Equal(t, 16, v.GetInt("server.max_in_flight"))
}
