package ccavenue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, statusURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		MerchantID: "12345",
		AccessCode: "AVXX99",
		WorkingKey: testWorkingKey,
		PaymentURL: "https://secure.ccavenue.ae/transaction/transaction.do?command=initiateTransaction",
		StatusURL:  statusURL,
		Timeout:    5 * time.Second,
	}, nil, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func TestEncryptedRequestDecryptsToParams(t *testing.T) {
	client := newTestClient(t, "http://unused")

	enc, err := client.EncryptedRequest(PaymentRequest{
		OrderID:     "NZ7-1a2b3c4d",
		Amount:      "5000.00",
		Currency:    "AED",
		RedirectURL: "https://pay.example.com/api/payments/callback",
		CancelURL:   "https://pay.example.com/api/payments/callback",
	})
	if err != nil {
		t.Fatalf("EncryptedRequest() error = %v", err)
	}

	plain, err := client.Codec().Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	for _, want := range []string{"merchant_id=12345", "order_id=NZ7-1a2b3c4d", "amount=5000.00"} {
		if !strings.Contains(plain, want) {
			t.Errorf("decrypted request %q missing %q", plain, want)
		}
	}
}

func TestOrderStatus(t *testing.T) {
	codec, err := NewCodec(testWorkingKey)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("gateway received unparseable form: %v", err)
		}
		if got := r.PostFormValue("command"); got != "orderStatusTracker" {
			t.Errorf("command = %q, want orderStatusTracker", got)
		}
		if got := r.PostFormValue("access_code"); got != "AVXX99" {
			t.Errorf("access_code = %q, want AVXX99", got)
		}

		reqPlain, err := codec.Decrypt(r.PostFormValue("enc_request"))
		if err != nil {
			t.Errorf("enc_request did not decrypt: %v", err)
		}
		if !strings.Contains(reqPlain, "NZ7-1a2b3c4d") {
			t.Errorf("status request %q missing order ref", reqPlain)
		}

		encResp, err := codec.Encrypt(`{"order_no":"NZ7-1a2b3c4d","reference_no":"313004999553","order_status":"Success","order_bank_ref_no":"BR9981","order_amt":5000.00}`)
		if err != nil {
			t.Errorf("encrypt response: %v", err)
		}
		fmt.Fprintf(w, "status=0&enc_response=%s", encResp)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	res, err := client.OrderStatus(context.Background(), "NZ7-1a2b3c4d")
	if err != nil {
		t.Fatalf("OrderStatus() error = %v", err)
	}
	if res.OrderStatus != "Success" {
		t.Errorf("OrderStatus = %q, want Success", res.OrderStatus)
	}
	if res.ReferenceNo != "313004999553" {
		t.Errorf("ReferenceNo = %q, want 313004999553", res.ReferenceNo)
	}
	if res.BankRefNo != "BR9981" {
		t.Errorf("BankRefNo = %q, want BR9981", res.BankRefNo)
	}
	if res.Amount != "5000.00" {
		t.Errorf("Amount = %q, want 5000.00", res.Amount)
	}
	if res.Raw == "" {
		t.Error("Raw should keep the decrypted JSON")
	}
}

func TestOrderStatusGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "status=1&enc_response=Invalid Parameter")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	if _, err := client.OrderStatus(context.Background(), "NZ7-1a2b3c4d"); err == nil {
		t.Fatal("OrderStatus() should fail when the gateway rejects the request")
	}
}
