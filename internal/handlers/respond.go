package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "Internal server error"

// internalError logs err and answers 500 without leaking it. key is the body field the
// endpoint uses for messages ("error" or "message").
func (h HandlerSet) internalError(c *gin.Context, key string, err error) {
	_ = c.Error(err)
	h.log.Error().
		Err(err).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.GetString("X-Request-Id")).
		Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{key: internalErrorMessage})
}

func invalidBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}
