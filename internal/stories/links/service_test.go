package links

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/ccavenue"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

type stubStorage struct {
	link          *Link
	created       []Link
	expireCalls   int
	expiredCount  int64
	usedIDs       []int64
	failCreations int // fail this many creations with ErrTokenTaken
}

func (s *stubStorage) CreateLink(_ context.Context, link Link) (*Link, error) {
	if s.failCreations > 0 {
		s.failCreations--
		return nil, ErrTokenTaken
	}
	link.ID = int64(len(s.created) + 1)
	s.created = append(s.created, link)
	return &link, nil
}

func (s *stubStorage) GetLink(_ context.Context, _ GetCriteria) (*Link, error) {
	return s.link, nil
}

func (s *stubStorage) ExpireActiveLinks(_ context.Context, _ int64, _ *int64) (int64, error) {
	s.expireCalls++
	return s.expiredCount, nil
}

func (s *stubStorage) MarkLinkUsed(_ context.Context, linkID int64) error {
	s.usedIDs = append(s.usedIDs, linkID)
	return nil
}

func (s *stubStorage) SweepExpiredLinks(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type stubLedger struct {
	order       *orders.Order
	target      *orders.InitiateTarget
	canErr      error
	markPending []orders.MarkPendingRequest
}

func (s *stubLedger) GetOrder(_ context.Context, _ int64) (*orders.Order, error) {
	return s.order, nil
}

func (s *stubLedger) CanInitiate(_ context.Context, _ orders.CanInitiateRequest) (*orders.InitiateTarget, error) {
	if s.canErr != nil {
		return nil, s.canErr
	}
	return s.target, nil
}

func (s *stubLedger) MarkPending(_ context.Context, req orders.MarkPendingRequest) (*orders.Attempt, error) {
	s.markPending = append(s.markPending, req)
	return &orders.Attempt{ID: 1, GatewayOrderRef: req.GatewayOrderRef, Status: orders.StatusPending}, nil
}

type stubGateway struct {
	requests []ccavenue.PaymentRequest
}

func (s *stubGateway) EncryptedRequest(req ccavenue.PaymentRequest) (string, error) {
	s.requests = append(s.requests, req)
	return "656e6372797074656400", nil
}

func (s *stubGateway) AccessCode() string { return "AVXX99" }

func (s *stubGateway) PaymentURL() string {
	return "https://secure.ccavenue.ae/transaction/transaction.do?command=initiateTransaction"
}

type stubNotifier struct {
	fail  bool
	calls int
}

func (s *stubNotifier) PaymentLinkIssued(_ context.Context, _ *orders.Order, _ *orders.Milestone, _ *Link, _ float64) error {
	s.calls++
	if s.fail {
		return io.ErrClosedPipe
	}
	return nil
}

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		PublicBaseURL: "https://pay.example.com",
		CallbackURL:   "https://pay.example.com/api/payments/callback",
		DefaultExpiry: 48 * time.Hour,
		MaxExpiry:     168 * time.Hour,
	}
}

func newTestService(storage *stubStorage, ledger *stubLedger, gateway *stubGateway, notifier *stubNotifier, cfg Config) *Service {
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	svc := NewService(storage, ledger, gateway, n, cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return testNow }
	return svc
}

func testTarget() *orders.InitiateTarget {
	return &orders.InitiateTarget{
		Order: &orders.Order{
			ID:            7,
			Reference:     "NZ-2026-0007",
			CustomerName:  "Sara",
			CustomerEmail: "sara@example.com",
			CustomerPhone: "+971501234567",
			Language:      "en",
			Currency:      "AED",
			PaymentMethod: orders.MethodOnlinePayment,
		},
		Amount:   5000,
		Currency: "AED",
	}
}

func TestIssue(t *testing.T) {
	storage := &stubStorage{expiredCount: 1}
	notifier := &stubNotifier{}
	svc := newTestService(storage, &stubLedger{target: testTarget()}, &stubGateway{}, notifier, testConfig())

	res, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if len(res.Link.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(res.Link.Token))
	}
	if !strings.HasSuffix(res.Link.URL, res.Link.Token) {
		t.Errorf("URL %q does not end with the token", res.Link.URL)
	}
	if want := testNow.Add(48 * time.Hour); !res.Link.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", res.Link.ExpiresAt, want)
	}
	if storage.expireCalls != 1 {
		t.Errorf("previous links expired %d times, want 1", storage.expireCalls)
	}
	if !res.NotificationSent {
		t.Error("NotificationSent = false, want true")
	}
	if notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.calls)
	}
	if res.Amount != 5000 {
		t.Errorf("Amount = %v, want 5000", res.Amount)
	}
}

func TestIssueCustomExpiry(t *testing.T) {
	storage := &stubStorage{}
	svc := newTestService(storage, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	res, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7, ExpiryHours: 24})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if want := testNow.Add(24 * time.Hour); !res.Link.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", res.Link.ExpiresAt, want)
	}
}

func TestIssueExpiryOverMax(t *testing.T) {
	svc := newTestService(&stubStorage{}, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	_, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7, ExpiryHours: 24 * 365})
	if err == nil {
		t.Fatal("Issue() should reject expiry beyond the maximum")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeValidation {
		t.Errorf("error code = %s, want %s", got, errs.CodeValidation)
	}
}

func TestIssueTokenCollisionRetriesOnce(t *testing.T) {
	storage := &stubStorage{failCreations: 1}
	svc := newTestService(storage, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	res, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7})
	if err != nil {
		t.Fatalf("Issue() after one collision error = %v", err)
	}
	if res.Link == nil {
		t.Fatal("Issue() returned no link")
	}
}

func TestIssueTokenCollisionExhausted(t *testing.T) {
	storage := &stubStorage{failCreations: 2}
	svc := newTestService(storage, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	_, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7})
	if err == nil {
		t.Fatal("Issue() should fail after repeated collisions")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeTokenGeneration {
		t.Errorf("error code = %s, want %s", got, errs.CodeTokenGeneration)
	}
}

func TestIssueNotifierFailureDoesNotFailIssue(t *testing.T) {
	notifier := &stubNotifier{fail: true}
	svc := newTestService(&stubStorage{}, &stubLedger{target: testTarget()}, &stubGateway{}, notifier, testConfig())

	res, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if res.NotificationSent {
		t.Error("NotificationSent = true, want false after notifier failure")
	}
}

func TestIssueLedgerRejectionPassesThrough(t *testing.T) {
	ledger := &stubLedger{canErr: errs.Conflict(errs.CodeAlreadyPaid, "paid")}
	svc := newTestService(&stubStorage{}, ledger, &stubGateway{}, nil, testConfig())

	_, err := svc.Issue(context.Background(), IssueRequest{OrderID: 7})
	if err == nil {
		t.Fatal("Issue() should fail when the ledger rejects")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeAlreadyPaid {
		t.Errorf("error code = %s, want %s", got, errs.CodeAlreadyPaid)
	}
}

func TestRevokeWithoutActiveLink(t *testing.T) {
	svc := newTestService(&stubStorage{expiredCount: 0}, &stubLedger{}, &stubGateway{}, nil, testConfig())

	err := svc.Revoke(context.Background(), 7, nil)
	if err == nil {
		t.Fatal("Revoke() should fail when nothing is active")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeLinkNotFound {
		t.Errorf("error code = %s, want %s", got, errs.CodeLinkNotFound)
	}
}

func activeLink() *Link {
	return &Link{
		ID:          12,
		Token:       strings.Repeat("ab", 32),
		OrderID:     7,
		URL:         "https://pay.example.com/pay/" + strings.Repeat("ab", 32),
		GeneratedAt: testNow.Add(-time.Hour),
		ExpiresAt:   testNow.Add(47 * time.Hour),
	}
}

func TestResolveExpiredByClock(t *testing.T) {
	link := activeLink()
	link.ExpiresAt = testNow.Add(-time.Second) // flag not yet swept
	svc := newTestService(&stubStorage{link: link}, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	_, err := svc.Resolve(context.Background(), link.Token)
	if err == nil {
		t.Fatal("Resolve() should fail for an expired link")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeLinkExpired {
		t.Errorf("error code = %s, want %s", got, errs.CodeLinkExpired)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	svc := newTestService(&stubStorage{link: nil}, &stubLedger{}, &stubGateway{}, nil, testConfig())

	_, err := svc.Resolve(context.Background(), "deadbeef")
	if err == nil {
		t.Fatal("Resolve() should fail for an unknown token")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeLinkNotFound {
		t.Errorf("error code = %s, want %s", got, errs.CodeLinkNotFound)
	}
}

func TestResolveAlreadyPaid(t *testing.T) {
	ledger := &stubLedger{
		canErr: errs.Conflict(errs.CodeAlreadyPaid, "paid"),
		order:  testTarget().Order,
	}
	svc := newTestService(&stubStorage{link: activeLink()}, ledger, &stubGateway{}, nil, testConfig())

	details, err := svc.Resolve(context.Background(), activeLink().Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !details.AlreadyPaid {
		t.Error("AlreadyPaid = false, want true")
	}
	if details.Order == nil {
		t.Error("Order missing from paid details")
	}
}

func TestResolvePayable(t *testing.T) {
	svc := newTestService(&stubStorage{link: activeLink()}, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	details, err := svc.Resolve(context.Background(), activeLink().Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if details.AlreadyPaid {
		t.Error("AlreadyPaid = true, want false")
	}
	if details.Amount != 5000 {
		t.Errorf("Amount = %v, want 5000", details.Amount)
	}
}

func TestInitiate(t *testing.T) {
	storage := &stubStorage{link: activeLink()}
	ledger := &stubLedger{target: testTarget()}
	gateway := &stubGateway{}
	svc := newTestService(storage, ledger, gateway, nil, testConfig())

	res, err := svc.Initiate(context.Background(), activeLink().Token)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	if len(ledger.markPending) != 1 {
		t.Fatalf("MarkPending called %d times, want 1", len(ledger.markPending))
	}
	pending := ledger.markPending[0]
	if pending.LinkID == nil || *pending.LinkID != 12 {
		t.Errorf("pending LinkID = %v, want 12", pending.LinkID)
	}

	orderID, milestoneID, err := ccavenue.ParseOrderRef(res.GatewayOrderRef)
	if err != nil {
		t.Fatalf("gateway order ref %q unparseable: %v", res.GatewayOrderRef, err)
	}
	if orderID != 7 || milestoneID != nil {
		t.Errorf("ref parsed to order %d milestone %v, want 7/nil", orderID, milestoneID)
	}

	if len(gateway.requests) != 1 {
		t.Fatalf("gateway received %d requests, want 1", len(gateway.requests))
	}
	greq := gateway.requests[0]
	if greq.MerchantParam1 != "7" {
		t.Errorf("merchant_param1 = %q, want 7", greq.MerchantParam1)
	}
	if greq.MerchantParam2 != ccavenue.MerchantParamFull {
		t.Errorf("merchant_param2 = %q, want %q", greq.MerchantParam2, ccavenue.MerchantParamFull)
	}
	if greq.Amount != "5000.00" {
		t.Errorf("amount = %q, want 5000.00", greq.Amount)
	}

	if res.AccessCode != "AVXX99" {
		t.Errorf("AccessCode = %q, want AVXX99", res.AccessCode)
	}
	if res.EncRequest == "" {
		t.Error("EncRequest is empty")
	}
}

func TestInitiateMilestoneParams(t *testing.T) {
	link := activeLink()
	link.MilestoneID = ptr(int64(32))

	target := testTarget()
	target.Milestone = &orders.Milestone{ID: 32, OrderID: 7, Seq: 2, Name: "Materials", Amount: 3000}
	target.Amount = 3000

	gateway := &stubGateway{}
	svc := newTestService(&stubStorage{link: link}, &stubLedger{target: target}, gateway, nil, testConfig())

	res, err := svc.Initiate(context.Background(), link.Token)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	if gateway.requests[0].MerchantParam2 != "32" {
		t.Errorf("merchant_param2 = %q, want 32", gateway.requests[0].MerchantParam2)
	}

	_, milestoneID, err := ccavenue.ParseOrderRef(res.GatewayOrderRef)
	if err != nil {
		t.Fatalf("ref unparseable: %v", err)
	}
	if milestoneID == nil || *milestoneID != 32 {
		t.Errorf("ref milestone = %v, want 32", milestoneID)
	}
}

func TestInitiateSingleUsePolicy(t *testing.T) {
	link := activeLink()
	link.IsUsed = true

	cfg := testConfig()
	cfg.SingleUse = true
	svc := newTestService(&stubStorage{link: link}, &stubLedger{target: testTarget()}, &stubGateway{}, nil, cfg)

	_, err := svc.Initiate(context.Background(), link.Token)
	if err == nil {
		t.Fatal("Initiate() should reject a used link under single-use policy")
	}
	if got := errs.FromErr(err).Code; got != errs.CodeLinkUsed {
		t.Errorf("error code = %s, want %s", got, errs.CodeLinkUsed)
	}
}

func TestInitiateSingleUseConsumesLink(t *testing.T) {
	storage := &stubStorage{link: activeLink()}

	cfg := testConfig()
	cfg.SingleUse = true
	svc := newTestService(storage, &stubLedger{target: testTarget()}, &stubGateway{}, nil, cfg)

	if _, err := svc.Initiate(context.Background(), activeLink().Token); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if len(storage.usedIDs) != 1 || storage.usedIDs[0] != 12 {
		t.Errorf("consumed link ids = %v, want [12]", storage.usedIDs)
	}
}

func TestInitiateUsedLinkReusableByDefault(t *testing.T) {
	link := activeLink()
	link.IsUsed = true // default policy allows reuse; ledger decides payability

	svc := newTestService(&stubStorage{link: link}, &stubLedger{target: testTarget()}, &stubGateway{}, nil, testConfig())

	if _, err := svc.Initiate(context.Background(), link.Token); err != nil {
		t.Fatalf("Initiate() error = %v, want reuse allowed", err)
	}
}

func ptr[T any](v T) *T { return &v }
