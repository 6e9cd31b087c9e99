package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sherryy67/nazam-core-sub002/internal/infra/sqlite3"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

func newTestStorage(t *testing.T) *storageImpl {
	t.Helper()

	db, err := sqlite3.New(context.Background(),
		sqlite3.WithDSN(":memory:"),
		sqlite3.WithMaxOpenConns(1),
	)
	if err != nil {
		t.Fatalf("sqlite3.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return New(db)
}

func createTestOrder(t *testing.T, s *storageImpl, milestones ...orders.MilestoneInput) *orders.Order {
	t.Helper()

	total := float64(9000)
	if len(milestones) > 0 {
		total = 0
		for _, m := range milestones {
			total += m.Amount
		}
	}

	order, err := s.CreateOrder(context.Background(), orders.CreateOrderRequest{
		CustomerName:  "Sara",
		CustomerEmail: "sara@example.com",
		CustomerPhone: "+971501234567",
		Language:      "en",
		ServiceName:   "Villa Renovation",
		TotalPrice:    total,
		Currency:      "AED",
		PaymentMethod: orders.MethodOnlinePayment,
		Milestones:    milestones,
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	return order
}

func createTestLink(t *testing.T, s *storageImpl, token string, orderID int64, milestoneID *int64) *links.Link {
	t.Helper()

	link, err := s.CreateLink(context.Background(), links.Link{
		Token:       token,
		OrderID:     orderID,
		MilestoneID: milestoneID,
		URL:         "https://pay.example.com/pay/" + token,
		GeneratedAt: time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	return link
}

func createTestAttempt(t *testing.T, s *storageImpl, ref string, order *orders.Order, milestoneID, linkID *int64, amount float64) *orders.Attempt {
	t.Helper()

	attempt, err := s.CreateAttempt(context.Background(), orders.MarkPendingRequest{
		OrderID:         order.ID,
		MilestoneID:     milestoneID,
		LinkID:          linkID,
		GatewayOrderRef: ref,
		Amount:          amount,
		Currency:        "AED",
	})
	if err != nil {
		t.Fatalf("CreateAttempt() error = %v", err)
	}
	return attempt
}

func TestCreateOrderAssignsReference(t *testing.T) {
	s := newTestStorage(t)

	order := createTestOrder(t, s,
		orders.MilestoneInput{Name: "Design", Amount: 2000},
		orders.MilestoneInput{Name: "Materials", Amount: 3000},
		orders.MilestoneInput{Name: "Execution", Amount: 4000},
	)

	want := fmt.Sprintf("NZ-%d-%04d", time.Now().UTC().Year(), order.ID)
	if order.Reference != want {
		t.Errorf("reference = %q, want %q", order.Reference, want)
	}
	if order.PaymentStatus != orders.StatusPending {
		t.Errorf("payment status = %s, want %s", order.PaymentStatus, orders.StatusPending)
	}
	if !order.RequireSequentialPayment {
		t.Error("sequential payment should default to true")
	}

	if len(order.Milestones) != 3 {
		t.Fatalf("milestones = %d, want 3", len(order.Milestones))
	}
	for i, m := range order.Milestones {
		if m.Seq != i+1 {
			t.Errorf("milestone %d seq = %d, want %d", i, m.Seq, i+1)
		}
		if m.PaymentStatus != orders.StatusPending || m.CompletionStatus != orders.CompletionNotStarted {
			t.Errorf("milestone %q state = %s/%s, want Pending/NotStarted", m.Name, m.PaymentStatus, m.CompletionStatus)
		}
	}
}

func TestGetOrderByReferenceAndMiss(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s)

	got, err := s.GetOrder(context.Background(), orders.GetOrderCriteria{Reference: &order.Reference})
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got == nil || got.ID != order.ID {
		t.Fatalf("GetOrder() by reference = %+v, want order %d", got, order.ID)
	}

	missing := int64(999)
	got, err = s.GetOrder(context.Background(), orders.GetOrderCriteria{ID: &missing})
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetOrder() for unknown id = %+v, want nil", got)
	}
}

func TestGetMilestone(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s, orders.MilestoneInput{Name: "Design", Amount: 2000})

	got, err := s.GetMilestone(context.Background(), order.Milestones[0].ID)
	if err != nil {
		t.Fatalf("GetMilestone() error = %v", err)
	}
	if got == nil || got.Name != "Design" || got.OrderID != order.ID {
		t.Errorf("GetMilestone() = %+v", got)
	}

	missing, err := s.GetMilestone(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetMilestone() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetMilestone() for unknown id = %+v, want nil", missing)
	}
}

func TestResolveAttemptFullOrderSuccess(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s,
		orders.MilestoneInput{Name: "Design", Amount: 2000},
		orders.MilestoneInput{Name: "Execution", Amount: 7000},
	)
	link := createTestLink(t, s, "tok-full", order.ID, nil)
	createTestAttempt(t, s, "NZ1-aaaa1111", order, nil, &link.ID, 9000)

	outcome, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1-aaaa1111",
		Status:          orders.StatusSuccess,
		TrackingID:      "313000123456",
		BankRef:         "CC99881",
		PaymentDate:     "25/08/2026 14:03:22",
		RawParams:       `{"order_status":"Success"}`,
	})
	if err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}

	if !outcome.Applied {
		t.Fatal("outcome not applied")
	}
	if outcome.Attempt.Status != orders.StatusSuccess || outcome.Attempt.TrackingID != "313000123456" {
		t.Errorf("attempt = %+v", outcome.Attempt)
	}
	if outcome.Order.PaymentStatus != orders.StatusSuccess {
		t.Errorf("order payment status = %s, want Success", outcome.Order.PaymentStatus)
	}
	for _, m := range outcome.Order.Milestones {
		if m.PaymentStatus != orders.StatusSuccess {
			t.Errorf("milestone %q = %s, full payment should settle it", m.Name, m.PaymentStatus)
		}
	}

	used, err := s.GetLink(context.Background(), links.GetCriteria{ID: &link.ID})
	if err != nil {
		t.Fatalf("GetLink() error = %v", err)
	}
	if !used.IsUsed {
		t.Error("link should be consumed by the success")
	}
}

func TestResolveAttemptIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s)
	createTestAttempt(t, s, "NZ1-bbbb2222", order, nil, nil, 9000)

	first, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1-bbbb2222",
		Status:          orders.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("first ResolveAttempt() error = %v", err)
	}
	if !first.Applied {
		t.Fatal("first resolution not applied")
	}

	// Replay claims the opposite verdict; stored state must win.
	second, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1-bbbb2222",
		Status:          orders.StatusFailure,
		FailureReason:   "forged replay",
	})
	if err != nil {
		t.Fatalf("second ResolveAttempt() error = %v", err)
	}
	if second.Applied {
		t.Error("replay should not apply")
	}
	if second.Attempt.Status != orders.StatusSuccess {
		t.Errorf("stored status = %s, want Success", second.Attempt.Status)
	}
	if second.Order.PaymentStatus != orders.StatusSuccess {
		t.Errorf("order status = %s, want Success", second.Order.PaymentStatus)
	}
}

func TestResolveAttemptMilestoneBookkeeping(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s,
		orders.MilestoneInput{Name: "Design", Amount: 2000},
		orders.MilestoneInput{Name: "Execution", Amount: 7000},
	)
	first := order.Milestones[0]
	second := order.Milestones[1]

	createTestAttempt(t, s, "NZ1M1-cccc3333", order, &first.ID, nil, 2000)
	outcome, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1M1-cccc3333",
		Status:          orders.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}

	var paid, unpaid *orders.Milestone
	for _, m := range outcome.Order.Milestones {
		switch m.ID {
		case first.ID:
			paid = m
		case second.ID:
			unpaid = m
		}
	}
	if paid.PaymentStatus != orders.StatusSuccess {
		t.Errorf("paid milestone status = %s", paid.PaymentStatus)
	}
	if paid.CompletionStatus != orders.CompletionInProgress {
		t.Errorf("paid milestone completion = %s, want InProgress", paid.CompletionStatus)
	}
	if unpaid.PaymentStatus != orders.StatusPending {
		t.Errorf("unpaid milestone status = %s, want Pending", unpaid.PaymentStatus)
	}
	if outcome.Order.PaymentStatus != orders.StatusPending {
		t.Errorf("order status = %s, one unpaid milestone should keep it Pending", outcome.Order.PaymentStatus)
	}

	// Settle the rest; the order aggregate should flip.
	createTestAttempt(t, s, "NZ1M2-dddd4444", order, &second.ID, nil, 7000)
	outcome, err = s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1M2-dddd4444",
		Status:          orders.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}
	if outcome.Order.PaymentStatus != orders.StatusSuccess {
		t.Errorf("order status = %s, want Success after last milestone", outcome.Order.PaymentStatus)
	}
}

func TestResolveAttemptFailureThenRetry(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s, orders.MilestoneInput{Name: "Design", Amount: 2000})
	milestone := order.Milestones[0]
	link := createTestLink(t, s, "tok-retry", order.ID, &milestone.ID)

	createTestAttempt(t, s, "NZ1M1-eeee5555", order, &milestone.ID, &link.ID, 2000)
	outcome, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1M1-eeee5555",
		Status:          orders.StatusFailure,
		FailureReason:   "card declined",
	})
	if err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}
	if outcome.Order.PaymentStatus != orders.StatusFailure {
		t.Errorf("order status = %s, want Failure", outcome.Order.PaymentStatus)
	}

	failedLink, err := s.GetLink(context.Background(), links.GetCriteria{ID: &link.ID})
	if err != nil {
		t.Fatalf("GetLink() error = %v", err)
	}
	if failedLink.IsUsed {
		t.Error("failure must not consume the link")
	}

	// Retry through the same link succeeds and overrides the failure.
	createTestAttempt(t, s, "NZ1M1-ffff6666", order, &milestone.ID, &link.ID, 2000)
	outcome, err = s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1M1-ffff6666",
		Status:          orders.StatusSuccess,
		TrackingID:      "313000777777",
	})
	if err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}
	if !outcome.Applied {
		t.Fatal("retry not applied")
	}
	if outcome.Order.PaymentStatus != orders.StatusSuccess {
		t.Errorf("order status = %s, want Success after retry", outcome.Order.PaymentStatus)
	}
}

func TestResolveAttemptUnknownRef(t *testing.T) {
	s := newTestStorage(t)

	outcome, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ999-00000000",
		Status:          orders.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}
	if outcome != nil {
		t.Errorf("outcome = %+v, want nil for unknown reference", outcome)
	}
}

func TestCreateLinkDuplicateToken(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s)
	createTestLink(t, s, "tok-dup", order.ID, nil)

	_, err := s.CreateLink(context.Background(), links.Link{
		Token:       "tok-dup",
		OrderID:     order.ID,
		URL:         "https://pay.example.com/pay/tok-dup",
		GeneratedAt: time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	if err != links.ErrTokenTaken {
		t.Errorf("CreateLink() error = %v, want ErrTokenTaken", err)
	}
}

func TestExpireActiveLinksTargetsScope(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s, orders.MilestoneInput{Name: "Design", Amount: 2000})
	milestone := order.Milestones[0]

	full := createTestLink(t, s, "tok-full-scope", order.ID, nil)
	scoped := createTestLink(t, s, "tok-milestone-scope", order.ID, &milestone.ID)

	n, err := s.ExpireActiveLinks(context.Background(), order.ID, nil)
	if err != nil {
		t.Fatalf("ExpireActiveLinks() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d links, want 1", n)
	}

	gotFull, _ := s.GetLink(context.Background(), links.GetCriteria{ID: &full.ID})
	gotScoped, _ := s.GetLink(context.Background(), links.GetCriteria{ID: &scoped.ID})
	if !gotFull.IsExpired {
		t.Error("full-order link should be expired")
	}
	if gotScoped.IsExpired {
		t.Error("milestone link should be untouched")
	}
}

func TestSweepExpiredLinks(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s)

	overdue, err := s.CreateLink(context.Background(), links.Link{
		Token:       "tok-overdue",
		OrderID:     order.ID,
		URL:         "https://pay.example.com/pay/tok-overdue",
		GeneratedAt: time.Now().UTC().Add(-49 * time.Hour),
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	fresh := createTestLink(t, s, "tok-fresh", order.ID, nil)

	n, err := s.SweepExpiredLinks(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("SweepExpiredLinks() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d links, want 1", n)
	}

	gotOverdue, _ := s.GetLink(context.Background(), links.GetCriteria{ID: &overdue.ID})
	gotFresh, _ := s.GetLink(context.Background(), links.GetCriteria{ID: &fresh.ID})
	if !gotOverdue.IsExpired {
		t.Error("overdue link not flagged")
	}
	if gotFresh.IsExpired {
		t.Error("fresh link wrongly flagged")
	}
}

func TestListAttemptsStalePendingFilter(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s)

	createTestAttempt(t, s, "NZ1-stale001", order, nil, nil, 9000)
	createTestAttempt(t, s, "NZ1-stale002", order, nil, nil, 9000)

	status := orders.StatusPending
	cutoff := time.Now().UTC().Add(time.Minute)
	got, err := s.ListAttempts(context.Background(), orders.ListAttemptsCriteria{
		Status:    &status,
		OlderThan: &cutoff,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("ListAttempts() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("attempts = %d, want 2", len(got))
	}
	if got[0].GatewayOrderRef != "NZ1-stale001" {
		t.Errorf("oldest first, got %q", got[0].GatewayOrderRef)
	}

	past := time.Now().UTC().Add(-time.Minute)
	got, err = s.ListAttempts(context.Background(), orders.ListAttemptsCriteria{
		Status:    &status,
		OlderThan: &past,
	})
	if err != nil {
		t.Fatalf("ListAttempts() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("attempts older than the past cutoff = %d, want 0", len(got))
	}
}

func TestLatestResolvedAttempt(t *testing.T) {
	s := newTestStorage(t)
	order := createTestOrder(t, s)

	none, err := s.LatestResolvedAttempt(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("LatestResolvedAttempt() error = %v", err)
	}
	if none != nil {
		t.Errorf("latest = %+v, want nil with no resolutions", none)
	}

	createTestAttempt(t, s, "NZ1-late0001", order, nil, nil, 9000)
	if _, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1-late0001",
		Status:          orders.StatusFailure,
	}); err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}

	createTestAttempt(t, s, "NZ1-late0002", order, nil, nil, 9000)
	if _, err := s.ResolveAttempt(context.Background(), orders.MarkResolvedRequest{
		GatewayOrderRef: "NZ1-late0002",
		Status:          orders.StatusSuccess,
		TrackingID:      "313000999999",
	}); err != nil {
		t.Fatalf("ResolveAttempt() error = %v", err)
	}

	latest, err := s.LatestResolvedAttempt(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("LatestResolvedAttempt() error = %v", err)
	}
	if latest == nil || latest.GatewayOrderRef != "NZ1-late0002" {
		t.Errorf("latest = %+v, want NZ1-late0002", latest)
	}
}
