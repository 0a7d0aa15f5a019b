package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fleetApp "github.com/orris-inc/soundmesh/internal/application/fleet"
	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/infrastructure/cache"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink/nodelinktest"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

const waitFor = 5 * time.Second

func init() {
	gin.SetMode(gin.TestMode)
}

// =====================================================================
// Fakes
// =====================================================================

type mockFailoverRepo struct {
	recent  []*fleetdomain.FailoverRecord
	byGuild map[snowflake.ID][]*fleetdomain.FailoverRecord
	limit   int
	err     error
}

func (m *mockFailoverRepo) Create(context.Context, *fleetdomain.FailoverRecord) error { return nil }

func (m *mockFailoverRepo) ListRecent(_ context.Context, limit int) ([]*fleetdomain.FailoverRecord, error) {
	m.limit = limit
	return m.recent, m.err
}

func (m *mockFailoverRepo) ListByGuild(_ context.Context, guildID snowflake.ID, limit int) ([]*fleetdomain.FailoverRecord, error) {
	m.limit = limit
	return m.byGuild[guildID], m.err
}

type mockStatsReader struct {
	entries []*cache.CachedNodeStats
	err     error
}

func (m *mockStatsReader) List(context.Context) ([]*cache.CachedNodeStats, error) {
	return m.entries, m.err
}

// =====================================================================
// Helpers
// =====================================================================

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func newClient(t *testing.T) *fleetApp.Client {
	t.Helper()
	c := fleetApp.NewClient(fleetApp.Options{
		Link: nodelink.Options{
			UserID:          42,
			NumShards:       1,
			ReconnectDelay:  50 * time.Millisecond,
			HealthyAfter:    100 * time.Millisecond,
			MinMajorVersion: 3,
		},
		UseLoadBalancer: true,
		Logger:          logger.NewNop(),
	})
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func newEngine(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.GET("/fleet", h.Summary)
	engine.GET("/fleet/stats", h.ListCachedStats)
	engine.GET("/nodes", h.ListNodes)
	engine.GET("/nodes/:name", h.GetNode)
	engine.POST("/nodes/:name/connect", h.ConnectNode)
	engine.POST("/nodes/:name/disconnect", h.DisconnectNode)
	engine.GET("/players", h.ListPlayers)
	engine.GET("/failovers", h.ListFailovers)
	return engine
}

func do(t *testing.T, engine *gin.Engine, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func connectAll(t *testing.T, c *fleetApp.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.Start(ctx))
}

// =====================================================================
// Tests
// =====================================================================

func TestListNodes_ReportsStatusAndPenalty(t *testing.T) {
	fakeA := nodelinktest.New(t)
	fakeB := nodelinktest.New(t)
	c := newClient(t)
	a := c.AddNode(fakeA.Node("a", "eu"))
	c.AddNode(fakeB.Node("b", "us"))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, a.Connect(ctx))

	fakeA.PushStats(3, 1, 0.2)
	require.Eventually(t, func() bool { return a.Stats() != nil }, waitFor, 10*time.Millisecond)

	engine := newEngine(NewHandler(c, nil, nil, logger.NewNop()))
	w, env := do(t, engine, "GET", "/nodes")
	require.Equal(t, http.StatusOK, w.Code)

	var nodes []NodeResponse
	require.NoError(t, json.Unmarshal(env.Data, &nodes))
	require.Len(t, nodes, 2)

	assert.Equal(t, "a", nodes[0].Name)
	assert.Equal(t, node.StatusConnected, nodes[0].Status)
	assert.Equal(t, 3, nodes[0].NodeVersion)
	require.NotNil(t, nodes[0].Penalty)
	assert.Greater(t, *nodes[0].Penalty, 0.0)
	require.NotNil(t, nodes[0].Stats)
	assert.Equal(t, 3, nodes[0].Stats.Players)

	assert.Equal(t, "b", nodes[1].Name)
	assert.Equal(t, node.StatusIdle, nodes[1].Status)
	assert.Nil(t, nodes[1].Penalty)
	assert.Nil(t, nodes[1].Stats)
}

func TestGetNode_NotFound(t *testing.T) {
	engine := newEngine(NewHandler(newClient(t), nil, nil, logger.NewNop()))

	w, env := do(t, engine, "GET", "/nodes/ghost")

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Type)
}

func TestConnectAndDisconnectNode(t *testing.T) {
	fake := nodelinktest.New(t)
	c := newClient(t)
	l := c.AddNode(fake.Node("a", "eu"))
	engine := newEngine(NewHandler(c, nil, nil, logger.NewNop()))

	w, _ := do(t, engine, "POST", "/nodes/a/connect")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return l.Status() == node.StatusConnected }, waitFor, 10*time.Millisecond)

	w, env := do(t, engine, "POST", "/nodes/a/disconnect")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	require.Eventually(t, func() bool { return l.Status() == node.StatusIdle }, waitFor, 10*time.Millisecond)
}

func TestDisconnectNode_IdleNodeRejoinsOnDemand(t *testing.T) {
	fake := nodelinktest.New(t)
	c := newClient(t)
	l := c.AddNode(fake.Node("a", "eu"))
	connectAll(t, c)
	engine := newEngine(NewHandler(c, nil, nil, logger.NewNop()))

	w, env := do(t, engine, "POST", "/nodes/a/disconnect")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.Message, "reconnects when picked")
	require.Eventually(t, func() bool { return l.Status() == node.StatusIdle }, waitFor, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	p, err := c.JoinVoice(ctx, 777, "eu", "session", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Same(t, l, p.Link())
	assert.Equal(t, node.StatusConnected, l.Status())
	assert.Len(t, fake.Handshakes(), 2)
}

func TestListPlayersAndSummary(t *testing.T) {
	fake := nodelinktest.New(t)
	c := newClient(t)
	c.AddNode(fake.Node("a", "eu"))
	connectAll(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	p, err := c.JoinVoice(ctx, 123456789012345678, "eu", "session", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, p.Play(&track.AudioTrack{Encoded: "enc", Identifier: "song-1", Title: "Song", Duration: 60_000}, 1000, 0))

	engine := newEngine(NewHandler(c, nil, nil, logger.NewNop()))

	w, env := do(t, engine, "GET", "/players")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"guild_id":"123456789012345678"`)

	var players []PlayerResponse
	require.NoError(t, json.Unmarshal(env.Data, &players))
	require.Len(t, players, 1)
	assert.Equal(t, "a", players[0].Node)
	assert.Equal(t, 100, players[0].Volume)
	require.NotNil(t, players[0].Track)
	assert.Equal(t, "song-1", players[0].Track.Identifier)
	assert.GreaterOrEqual(t, players[0].PositionMs, int64(1000))

	w, env = do(t, engine, "GET", "/fleet")
	require.Equal(t, http.StatusOK, w.Code)
	var summary SummaryResponse
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Nodes)
	assert.Equal(t, 1, summary.Players)
	assert.Equal(t, 1, summary.NodesByStatus["connected"])
	assert.Zero(t, summary.PendingFailovers)
}

func TestListFailovers(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recent := []*fleetdomain.FailoverRecord{
		fleetdomain.ReconstructFailoverRecord(2, 7, "a", "b", "song", 5000, fleetdomain.FailoverOutcomeMigrated, at),
		fleetdomain.ReconstructFailoverRecord(1, 8, "a", "", "", 0, fleetdomain.FailoverOutcomeDeferred, at),
	}
	repo := &mockFailoverRepo{
		recent:  recent,
		byGuild: map[snowflake.ID][]*fleetdomain.FailoverRecord{7: recent[:1]},
	}
	engine := newEngine(NewHandler(newClient(t), repo, nil, logger.NewNop()))

	w, env := do(t, engine, "GET", "/failovers?limit=500")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, repo.limit)

	var list struct {
		Items []FailoverResponse `json:"items"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "migrated", list.Items[0].Outcome)
	assert.Equal(t, "b", list.Items[0].ToNode)

	w, env = do(t, engine, "GET", "/failovers?guild_id=7")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 20, repo.limit)

	w, env = do(t, engine, "GET", "/failovers?guild_id=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", env.Error.Type)

	repo.err = fmt.Errorf("db is gone")
	w, _ = do(t, engine, "GET", "/failovers")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListCachedStats(t *testing.T) {
	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reader := &mockStatsReader{entries: []*cache.CachedNodeStats{
		{NodeName: "a", Penalty: 12.5, Stats: node.StatsSnapshot{Players: 2}, UpdatedAt: updated},
	}}
	engine := newEngine(NewHandler(newClient(t), nil, reader, logger.NewNop()))

	w, env := do(t, engine, "GET", "/fleet/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats []CachedStatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "a", stats[0].NodeName)
	assert.Equal(t, 12.5, stats[0].Penalty)
	assert.Equal(t, 2, stats[0].Stats.Players)

	reader.err = fmt.Errorf("redis down")
	w, _ = do(t, engine, "GET", "/fleet/stats")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOptionalSourcesDisabled(t *testing.T) {
	engine := newEngine(NewHandler(newClient(t), nil, nil, logger.NewNop()))

	w, _ := do(t, engine, "GET", "/failovers")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(t, engine, "GET", "/fleet/stats")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
