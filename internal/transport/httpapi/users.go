package httpapi

import (
	"net/http"

	"campus-market/internal/domain"

	"github.com/gin-gonic/gin"
)

func (h *handler) taskStats(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := h.Tasks.GetTaskUserStats(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) trust(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	rec, err := h.Trust.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record": rec,
		"level":  domain.LevelFor(rec.Score),
	})
}

func (h *handler) points(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	summary, err := h.Points.Balance(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type listQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Action string `form:"action"`
}

func (h *handler) ranking(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	ranks, err := h.Points.Ranking(ctx, q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": ranks})
}

// auditLogs lists recent audit events for signed-in operators.
func (h *handler) auditLogs(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	events, err := h.Audit.Recent(ctx, q.Action, q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
