package httpapi

import (
	"net/http"

	"campus-market/internal/domain"

	"github.com/gin-gonic/gin"
)

type takeTaskRequest struct {
	UserName string `json:"userName"`
}

type taskStatusRequest struct {
	Status domain.TaskStatus `json:"status" binding:"required"`
}

func (h *handler) publishTask(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	var in domain.NewTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err)
		return
	}
	in.PublisherID = userID

	ctx, cancel := requestContext(c)
	defer cancel()

	task, err := h.Tasks.PublishTask(ctx, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *handler) listTasks(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	tasks, err := h.Tasks.ListTasks(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *handler) listMyTasks(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	mine, err := h.Tasks.ListMyTasks(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mine)
}

func (h *handler) getTask(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	task, err := h.Tasks.GetTask(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *handler) takeTask(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req takeTaskRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)

	ctx, cancel := requestContext(c)
	defer cancel()

	taken, err := h.Tasks.TakeTask(ctx, c.Param("id"), req.UserName, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !taken {
		c.JSON(http.StatusConflict, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handler) updateTaskStatus(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Tasks.UpdateTaskStatus(ctx, c.Param("id"), req.Status, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if !res.OK() {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"ok": res.OK(), "result": res})
}
