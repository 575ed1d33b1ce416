package httpapi

import (
	"net/http"

	"campus-market/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

var statusByCode = map[domain.Code]int{
	domain.CodeAuthRequired:     http.StatusUnauthorized,
	domain.CodeInvalidParam:     http.StatusBadRequest,
	domain.CodeInvalidState:     http.StatusConflict,
	domain.CodeDuplicateSubmit:  http.StatusConflict,
	domain.CodeRateLimit:        http.StatusTooManyRequests,
	domain.CodePermissionDenied: http.StatusForbidden,
	domain.CodeNotFound:         http.StatusNotFound,
	domain.CodeUnavailable:      http.StatusServiceUnavailable,
}

func (h *handler) fail(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		code = domain.CodeUnavailable
	}
	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": message})
}

// actor resolves the caller or aborts with 401.
func (h *handler) actor(c *gin.Context) (string, bool) {
	id := c.GetHeader(UserHeader)
	if id == "" {
		h.fail(c, domain.ErrAuthRequired)
		return "", false
	}
	return id, true
}

func (h *handler) badRequest(c *gin.Context, err error) {
	h.fail(c, domain.InvalidParam("invalid request body: "+err.Error()))
}
