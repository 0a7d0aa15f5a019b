// Package fleet serves the read-mostly status API over the node fleet.
package fleet

import (
	"context"
	"net/http"
	"strconv"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/soundmesh/internal/application/balancer"
	fleetdomain "github.com/orris-inc/soundmesh/internal/domain/fleet"
	"github.com/orris-inc/soundmesh/internal/infrastructure/cache"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
	"github.com/orris-inc/soundmesh/internal/shared/utils"
)

// FleetService is the part of the fleet client the API reads from.
type FleetService interface {
	Links() []*nodelink.Link
	Link(name string) (*nodelink.Link, bool)
	Players() []*nodelink.Player
	PendingFailovers() int
	Balancer() *balancer.LoadBalancer
}

// StatsReader lists node stats shared by every instance.
type StatsReader interface {
	List(ctx context.Context) ([]*cache.CachedNodeStats, error)
}

// Handler serves fleet status. Failovers and Stats may be nil when the
// database or Redis is disabled.
type Handler struct {
	fleet     FleetService
	failovers fleetdomain.FailoverRepository
	stats     StatsReader
	logger    logger.Interface
}

func NewHandler(
	fleet FleetService,
	failovers fleetdomain.FailoverRepository,
	stats StatsReader,
	logger logger.Interface,
) *Handler {
	return &Handler{
		fleet:     fleet,
		failovers: failovers,
		stats:     stats,
		logger:    logger,
	}
}

// Summary handles GET /fleet
// @Summary Fleet summary
// @Description Count nodes by status, live players and players waiting for a node
// @Tags fleet
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SummaryResponse}
// @Router /fleet [get]
func (h *Handler) Summary(c *gin.Context) {
	links := h.fleet.Links()
	byStatus := make(map[string]int)
	for _, l := range links {
		byStatus[l.Status().String()]++
	}

	utils.SuccessResponse(c, http.StatusOK, "", SummaryResponse{
		Nodes:            len(links),
		NodesByStatus:    byStatus,
		Players:          len(h.fleet.Players()),
		PendingFailovers: h.fleet.PendingFailovers(),
	})
}

// ListNodes handles GET /nodes
// @Summary List nodes
// @Description List every configured node with its link status and load penalty
// @Tags nodes
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]NodeResponse}
// @Router /nodes [get]
func (h *Handler) ListNodes(c *gin.Context) {
	links := h.fleet.Links()
	lb := h.fleet.Balancer()

	nodes := make([]NodeResponse, 0, len(links))
	for _, l := range links {
		nodes = append(nodes, toNodeResponse(l, lb.Penalty(l)))
	}

	utils.SuccessResponse(c, http.StatusOK, "", nodes)
}

// GetNode handles GET /nodes/:name
// @Summary Get node
// @Tags nodes
// @Produce json
// @Param name path string true "Node name"
// @Success 200 {object} utils.APIResponse{data=NodeResponse}
// @Failure 404 {object} utils.APIResponse
// @Router /nodes/{name} [get]
func (h *Handler) GetNode(c *gin.Context) {
	l, ok := h.link(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toNodeResponse(l, h.fleet.Balancer().Penalty(l)))
}

// ConnectNode handles POST /nodes/:name/connect. The connection happens in
// the background; poll the node to see the outcome.
// @Summary Connect node
// @Description Start connecting the node without waiting for the outcome
// @Tags nodes
// @Produce json
// @Param name path string true "Node name"
// @Success 202 {object} utils.APIResponse{data=NodeResponse}
// @Failure 404 {object} utils.APIResponse
// @Router /nodes/{name}/connect [post]
func (h *Handler) ConnectNode(c *gin.Context) {
	l, ok := h.link(c)
	if !ok {
		return
	}

	l.ConnectAsync()
	h.logger.Infow("node connect requested via API", "node", l.Node().Name())

	utils.AcceptedResponse(c, toNodeResponse(l, h.fleet.Balancer().Penalty(l)), "connect started")
}

// DisconnectNode handles POST /nodes/:name/disconnect. Players on the node
// are dropped, not migrated. The node goes idle but stays in the pool: the
// balancer still picks it for new sessions and connects it again on demand.
// Remove it from the configuration to take it out for good.
// @Summary Disconnect node
// @Description Close the node's link; its players are destroyed. The idle node is reconnected when the balancer picks it for a new session.
// @Tags nodes
// @Produce json
// @Param name path string true "Node name"
// @Success 200 {object} utils.APIResponse{data=NodeResponse}
// @Failure 404 {object} utils.APIResponse
// @Failure 503 {object} utils.APIResponse
// @Router /nodes/{name}/disconnect [post]
func (h *Handler) DisconnectNode(c *gin.Context) {
	l, ok := h.link(c)
	if !ok {
		return
	}

	if err := l.Disconnect(0, "disconnected by operator"); err != nil {
		h.logger.Warnw("failed to disconnect node", "node", l.Node().Name(), "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	h.logger.Infow("node disconnected via API", "node", l.Node().Name())

	utils.SuccessResponse(c, http.StatusOK, "disconnected; reconnects when picked for a new session", toNodeResponse(l, h.fleet.Balancer().Penalty(l)))
}

// ListPlayers handles GET /players
// @Summary List players
// @Description List the players held by every node link
// @Tags players
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]PlayerResponse}
// @Router /players [get]
func (h *Handler) ListPlayers(c *gin.Context) {
	players := h.fleet.Players()
	out := make([]PlayerResponse, 0, len(players))
	for _, p := range players {
		out = append(out, toPlayerResponse(p))
	}
	utils.SuccessResponse(c, http.StatusOK, "", out)
}

// ListFailovers handles GET /failovers?guild_id=&limit=
// @Summary List failovers
// @Description List recorded failovers, newest first
// @Tags failovers
// @Produce json
// @Param guild_id query string false "Only failovers of this guild"
// @Param limit query int false "Maximum number of records"
// @Success 200 {object} utils.APIResponse{data=utils.ListResponse{items=[]FailoverResponse}}
// @Failure 400 {object} utils.APIResponse
// @Failure 503 {object} utils.APIResponse
// @Router /failovers [get]
func (h *Handler) ListFailovers(c *gin.Context) {
	if h.failovers == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "failover history requires the database")
		return
	}

	limit := utils.ParseLimit(c)

	var (
		records []*fleetdomain.FailoverRecord
		err     error
	)
	if raw := c.Query("guild_id"); raw != "" {
		guildID, parseErr := parseGuildID(raw)
		if parseErr != nil {
			utils.ErrorResponseWithError(c, parseErr)
			return
		}
		records, err = h.failovers.ListByGuild(c.Request.Context(), guildID, limit)
	} else {
		records, err = h.failovers.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		h.logger.Errorw("failed to list failovers", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.ListSuccessResponse(c, toFailoverResponses(records), len(records), limit)
}

// ListCachedStats handles GET /fleet/stats
// @Summary Shared node stats
// @Description List the latest stats every instance cached in Redis
// @Tags fleet
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]CachedStatsResponse}
// @Failure 503 {object} utils.APIResponse
// @Router /fleet/stats [get]
func (h *Handler) ListCachedStats(c *gin.Context) {
	if h.stats == nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "shared stats require redis")
		return
	}

	entries, err := h.stats.List(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to list cached node stats", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", toCachedStatsResponses(entries))
}

func (h *Handler) link(c *gin.Context) (*nodelink.Link, bool) {
	name := c.Param("name")
	l, ok := h.fleet.Link(name)
	if !ok {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("node not found", name))
		return nil, false
	}
	return l, true
}

func parseGuildID(raw string) (snowflake.ID, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, errors.NewValidationError("invalid guild_id", raw)
	}
	return snowflake.ID(v), nil
}
