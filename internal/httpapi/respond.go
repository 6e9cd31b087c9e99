package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
)

// envelope is the uniform body of every JSON response.
type envelope struct {
	Success     bool        `json:"success"`
	Exception   string      `json:"exception,omitempty"`
	Description string      `json:"description"`
	Content     interface{} `json:"content,omitempty"`
}

func respond(c *gin.Context, status int, description string, content interface{}) {
	c.JSON(status, envelope{
		Success:     true,
		Description: description,
		Content:     content,
	})
}

// respondErr translates any error into the envelope. Internal failures are
// logged with their full chain; the client only ever sees the typed surface.
func respondErr(c *gin.Context, logger *slog.Logger, err error) {
	e := errs.FromErr(err)
	if e.Status >= http.StatusInternalServerError && logger != nil {
		logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.JSON(e.Status, envelope{
		Success:     false,
		Exception:   string(e.Code),
		Description: e.Message,
	})
}
