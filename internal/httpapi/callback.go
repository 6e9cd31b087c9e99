package httpapi

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/reconcile"
)

//go:embed templates/*
var templatesFS embed.FS

var resultTmpl = template.Must(template.ParseFS(templatesFS, "templates/payment_result.html"))

// gatewayCallback serves both the POST the gateway sends server-side and the
// GET some integrations use to bounce the customer's browser back.
func (s *Server) gatewayCallback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		respondErr(c, s.logger, errs.Validation("unreadable form body"))
		return
	}

	outcome, err := s.reconcile.HandleCallback(c.Request.Context(), c.Request.PostForm, c.Request.URL.Query())
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	// The payment state is recorded by now. Everything below is best-effort
	// browser steering and must never surface as a failure.
	if s.resultPageURL == "" {
		s.renderResultPage(c, outcome)
		return
	}
	s.redirectToResult(c, outcome)
}

func (s *Server) redirectToResult(c *gin.Context, outcome *reconcile.CallbackOutcome) {
	target, err := url.Parse(s.resultPageURL)
	if err != nil {
		s.logger.Error("Result page URL does not parse", "url", s.resultPageURL, "error", err)
		s.renderResultPage(c, outcome)
		return
	}

	q := target.Query()
	q.Set("order_id", strconv.FormatInt(outcome.OrderID, 10))
	q.Set("status", string(outcome.Status))
	if outcome.Reference != "" {
		q.Set("reference", outcome.Reference)
	}
	if outcome.Reason != "" {
		q.Set("reason", outcome.Reason)
	}
	target.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, target.String())
}

func (s *Server) renderResultPage(c *gin.Context, outcome *reconcile.CallbackOutcome) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)

	data := map[string]interface{}{
		"Reference": outcome.Reference,
		"Status":    string(outcome.Status),
		"Reason":    outcome.Reason,
		"Success":   outcome.Status == orders.StatusSuccess,
		"Pending":   outcome.Status == orders.StatusPending,
	}
	if err := resultTmpl.Execute(c.Writer, data); err != nil {
		s.logger.Error("Result page render failed", "error", err)
	}
}
