package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

type milestonePayload struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type createOrderPayload struct {
	CustomerName             string             `json:"customerName"`
	CustomerEmail            string             `json:"customerEmail"`
	CustomerPhone            string             `json:"customerPhone"`
	Language                 string             `json:"language"`
	ServiceName              string             `json:"serviceName"`
	TotalPrice               float64            `json:"totalPrice"`
	Currency                 string             `json:"currency"`
	PaymentMethod            string             `json:"paymentMethod"`
	RequireSequentialPayment *bool              `json:"requireSequentialPayment"`
	Milestones               []milestonePayload `json:"milestones"`
}

func (s *Server) createOrder(c *gin.Context) {
	var payload createOrderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondErr(c, s.logger, errs.Validation("invalid request body: %v", err))
		return
	}

	req := orders.CreateOrderRequest{
		CustomerName:             payload.CustomerName,
		CustomerEmail:            payload.CustomerEmail,
		CustomerPhone:            payload.CustomerPhone,
		Language:                 payload.Language,
		ServiceName:              payload.ServiceName,
		TotalPrice:               payload.TotalPrice,
		Currency:                 payload.Currency,
		PaymentMethod:            orders.PaymentMethod(payload.PaymentMethod),
		RequireSequentialPayment: payload.RequireSequentialPayment,
	}
	for _, m := range payload.Milestones {
		req.Milestones = append(req.Milestones, orders.MilestoneInput{Name: m.Name, Amount: m.Amount})
	}

	order, err := s.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	c.JSON(http.StatusCreated, envelope{
		Success:     true,
		Description: "Order created",
		Content:     newOrderView(order),
	})
}

func (s *Server) paymentStatus(c *gin.Context) {
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	view, err := s.orders.PaymentStatus(c.Request.Context(), orderID)
	if err != nil {
		respondErr(c, s.logger, err)
		return
	}

	respond(c, http.StatusOK, "Payment status", newPaymentStatusView(view))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.New(errs.CodeInvalidOrderID, http.StatusBadRequest, "invalid order id %q", raw)
	}
	return id, nil
}
