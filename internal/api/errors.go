package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/checkin"
)

// fail writes the JSON error body for err. Store and write failures are
// logged and answered with the operation's generic message.
func (h *handler) fail(c *gin.Context, err error, generic string) {
	var conflict *checkin.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "conflictField": conflict.Field})
	case errors.Is(err, checkin.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, checkin.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(generic)
		c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
	}
}

func (h *handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": FormatBindingError(err)})
}
