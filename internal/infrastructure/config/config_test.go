package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "nodes: []\n"), "")
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "UTC", cfg.Server.Timezone)
	assert.Equal(t, 1, cfg.Client.NumShards)
	assert.Equal(t, 30*time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, 10*time.Second, cfg.Client.FailoverRetryDelay)
	assert.Equal(t, 15*time.Second, cfg.Client.FailoverConnectTimeout)
	assert.Equal(t, 3, cfg.Client.MinMajorVersion)
	assert.True(t, cfg.Client.UseLoadBalancer)
	assert.Equal(t, "goose", cfg.Database.Migration)
	assert.Equal(t, 24*time.Hour, cfg.Database.StatsRetention)
	assert.Equal(t, 2*time.Minute, cfg.Redis.StatsTTL)
	assert.Same(t, cfg, Get())
}

func TestLoadFile_NodesAndEnv(t *testing.T) {
	t.Setenv("SOUNDMESH_CLIENT_USER_ID", "1234")

	cfg, err := LoadFile(writeFile(t, `
nodes:
  - name: alpha
    password: pw
    http_host: http://10.0.0.1:2333
    ws_host: ws://10.0.0.1:2333
    region: eu
`), "development")
	require.NoError(t, err)

	require.Len(t, cfg.Nodes, 1)
	assert.Equal(t, "alpha", cfg.Nodes[0].Name)
	assert.Equal(t, "eu", cfg.Nodes[0].Region)
	assert.Equal(t, uint64(1234), cfg.Client.UserID)
	assert.Equal(t, "development", cfg.Server.Mode)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "duplicate node names",
			content: `
nodes:
  - {name: a, http_host: "http://h:1", ws_host: "ws://h:1"}
  - {name: a, http_host: "http://h:2", ws_host: "ws://h:2"}
`,
			errMsg: "duplicate node name",
		},
		{
			name: "missing ws host",
			content: `
nodes:
  - {name: a, http_host: "http://h:1"}
`,
			errMsg: "invalid node config at index 0",
		},
		{
			name:    "non-positive shard count",
			content: "client:\n  num_shards: 0\n",
			errMsg:  "num_shards",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.content), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}
