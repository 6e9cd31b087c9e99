package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
)

type issueLinkPayload struct {
	ExpiryHours int    `json:"expiryHours"`
	MilestoneID *int64 `json:"milestoneId"`
}

func (s *Server) issueLink(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	// The body is optional: an empty POST issues a full-order link with the
	// configured default expiry.
	var payload issueLinkPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondErr(c, s.logger, errs.Validation("invalid request body: %v", err))
			return
		}
	}

	res, err := s.links.Issue(c.Request.Context(), links.IssueRequest{
		OrderID:     orderID,
		MilestoneID: payload.MilestoneID,
		ExpiryHours: payload.ExpiryHours,
	})
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	c.JSON(http.StatusCreated, envelope{
		Success:     true,
		Description: "Payment link issued",
		Content: issuedLinkView{
			PaymentLink:      res.Link.URL,
			Token:            res.Link.Token,
			ExpiresAt:        res.Link.ExpiresAt,
			Amount:           res.Amount,
			Currency:         res.Currency,
			NotificationSent: res.NotificationSent,
		},
	})
}

func (s *Server) revokeLink(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	var milestoneID *int64
	if raw := c.Query("milestoneId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondErr(c, s.logger, errs.Validation("invalid milestoneId %q", raw))
			return
		}
		milestoneID = &id
	}

	if err := s.links.Revoke(c.Request.Context(), orderID, milestoneID); err != nil {
		respondErr(c, s.logger, err)
		return
	}

	respond(c, http.StatusOK, "Payment link revoked", nil)
}

func (s *Server) linkDetails(c *gin.Context) {
	details, err := s.links.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	respond(c, http.StatusOK, "Payment link details", newLinkDetailsView(details, time.Now()))
}

func (s *Server) initiatePayment(c *gin.Context) {
	res, err := s.links.Initiate(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	respond(c, http.StatusOK, "Payment initiated", initiateView{
		PaymentURL: res.PaymentURL,
		AccessCode: res.AccessCode,
		EncRequest: res.EncRequest,
		OrderID:    res.GatewayOrderRef,
		Amount:     res.Amount,
		Currency:   res.Currency,
	})
}
