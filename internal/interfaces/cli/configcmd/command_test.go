package configcmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
)

const testConfig = `
client:
  user_id: 42
  penalty:
    null_offset: 7000
nodes:
  - name: alpha
    password: youshallnotpass
    http_host: http://127.0.0.1:2333
    ws_host: ws://127.0.0.1:2333
    region: eu
redis:
  password: hunter2
database:
  driver: mysql
  password: dbsecret
  database: soundmesh
`

func runConfig(t *testing.T, args ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cmd := NewCommand(&bootstrap.Flags{ConfigPath: path})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestConfig_MasksSecrets(t *testing.T) {
	out := runConfig(t)

	assert.NotContains(t, out, "youshallnotpass")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "dbsecret")
	assert.Contains(t, out, mask)

	var v configView
	require.NoError(t, yaml.Unmarshal([]byte(out), &v))
	require.Len(t, v.Nodes, 1)
	assert.Equal(t, "alpha", v.Nodes[0].Name)
	assert.Equal(t, mask, v.Nodes[0].Password)
	assert.Equal(t, uint64(42), v.Client.UserID)
	assert.Equal(t, "30s", v.Client.ReconnectDelay)
	assert.Equal(t, "15s", v.Client.FailoverConnectTimeout)
	assert.Equal(t, map[string]float64{"null_offset": 7000}, v.Client.Penalty)
	assert.Equal(t, "soundmesh", v.Database.Database)
	assert.Empty(t, v.Database.Path)
}

func TestConfig_ShowSecrets(t *testing.T) {
	out := runConfig(t, "--show-secrets")

	assert.Contains(t, out, "youshallnotpass")
	assert.Contains(t, out, "hunter2")
	assert.Contains(t, out, "dbsecret")
}
