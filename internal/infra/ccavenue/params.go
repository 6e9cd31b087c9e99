package ccavenue

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Gateway order_status vocabulary as observed on the wire.
const (
	GatewayStatusSuccess = "Success"
	GatewayStatusFailure = "Failure"
	GatewayStatusInvalid = "Invalid"
	GatewayStatusTimeout = "Timeout"
	GatewayStatusAborted = "Aborted"
	GatewayStatusAwaited = "Awaited"
	GatewayStatusPending = "Pending"
)

// MerchantParamFull marks an attempt that pays the whole order rather than a
// single milestone; carried in merchant_param2.
const MerchantParamFull = "full"

// PaymentRequest is the plaintext parameter set sent to the hosted checkout
// page. Encoded as key=value&... and encrypted into enc_request.
type PaymentRequest struct {
	MerchantID  string
	OrderID     string // gateway order reference, unique per attempt
	Amount      string // "%.2f"
	Currency    string
	RedirectURL string
	CancelURL   string
	Language    string

	BillingName  string
	BillingEmail string
	BillingTel   string

	// merchant_param1 = internal order id, merchant_param2 = milestone id or
	// MerchantParamFull. Echoed back verbatim in the callback.
	MerchantParam1 string
	MerchantParam2 string
}

// Encode renders the gateway parameter string. Empty optional fields are
// omitted.
func (r PaymentRequest) Encode() string {
	v := url.Values{}
	v.Set("merchant_id", r.MerchantID)
	v.Set("order_id", r.OrderID)
	v.Set("amount", r.Amount)
	v.Set("currency", r.Currency)
	v.Set("redirect_url", r.RedirectURL)
	v.Set("cancel_url", r.CancelURL)
	if r.Language != "" {
		v.Set("language", r.Language)
	}
	if r.BillingName != "" {
		v.Set("billing_name", r.BillingName)
	}
	if r.BillingEmail != "" {
		v.Set("billing_email", r.BillingEmail)
	}
	if r.BillingTel != "" {
		v.Set("billing_tel", r.BillingTel)
	}
	if r.MerchantParam1 != "" {
		v.Set("merchant_param1", r.MerchantParam1)
	}
	if r.MerchantParam2 != "" {
		v.Set("merchant_param2", r.MerchantParam2)
	}
	return v.Encode()
}

// CallbackResult is the decrypted callback parameter set, mapped from the
// gateway's field names.
type CallbackResult struct {
	OrderID        string // gateway order reference (order_id)
	TrackingID     string
	BankRefNo      string
	OrderStatus    string
	FailureMessage string
	StatusMessage  string
	PaymentMode    string
	CardName       string
	Currency       string
	Amount         string
	TransDate      string
	MerchantParam1 string
	MerchantParam2 string

	// Raw keeps every decrypted field for the audit record.
	Raw url.Values
}

// ParseCallback parses a decrypted key=value&... parameter string.
func ParseCallback(plain string) (*CallbackResult, error) {
	vals, err := url.ParseQuery(plain)
	if err != nil {
		return nil, fmt.Errorf("parse callback params: %w", err)
	}

	res := &CallbackResult{
		OrderID:        vals.Get("order_id"),
		TrackingID:     vals.Get("tracking_id"),
		BankRefNo:      vals.Get("bank_ref_no"),
		OrderStatus:    vals.Get("order_status"),
		FailureMessage: vals.Get("failure_message"),
		StatusMessage:  vals.Get("status_message"),
		PaymentMode:    vals.Get("payment_mode"),
		CardName:       vals.Get("card_name"),
		Currency:       vals.Get("currency"),
		Amount:         vals.Get("amount"),
		TransDate:      vals.Get("trans_date"),
		MerchantParam1: vals.Get("merchant_param1"),
		MerchantParam2: vals.Get("merchant_param2"),
		Raw:            vals,
	}
	if res.OrderID == "" {
		return nil, fmt.Errorf("callback params carry no order_id")
	}
	return res, nil
}

const orderRefPrefix = "NZ"

// BuildOrderRef mints the gateway order reference for one payment attempt:
// NZ<orderID>[M<milestoneID>]-<8 uuid hex chars>. The random suffix keeps
// retried attempts unique on the gateway side; the structured front half
// remains parseable when merchant params go missing.
func BuildOrderRef(orderID int64, milestoneID *int64) string {
	var b strings.Builder
	b.WriteString(orderRefPrefix)
	b.WriteString(strconv.FormatInt(orderID, 10))
	if milestoneID != nil {
		b.WriteString("M")
		b.WriteString(strconv.FormatInt(*milestoneID, 10))
	}
	b.WriteString("-")
	b.WriteString(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return b.String()
}

// ParseOrderRef recovers the order and milestone ids from a reference built
// by BuildOrderRef.
func ParseOrderRef(ref string) (orderID int64, milestoneID *int64, err error) {
	body, ok := strings.CutPrefix(ref, orderRefPrefix)
	if !ok {
		return 0, nil, fmt.Errorf("order ref %q: missing %s prefix", ref, orderRefPrefix)
	}
	if i := strings.LastIndex(body, "-"); i >= 0 {
		body = body[:i]
	}

	orderPart, milestonePart, hasMilestone := strings.Cut(body, "M")
	orderID, err = strconv.ParseInt(orderPart, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("order ref %q: bad order id: %w", ref, err)
	}
	if hasMilestone {
		id, err := strconv.ParseInt(milestonePart, 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("order ref %q: bad milestone id: %w", ref, err)
		}
		milestoneID = &id
	}
	return orderID, milestoneID, nil
}
