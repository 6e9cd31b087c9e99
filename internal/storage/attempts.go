package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

const attemptsTable = "payment_attempts"

var attemptRowFields = fields(attemptRow{})

type attemptRow struct {
	ID              int64     `db:"id"`
	GatewayOrderRef string    `db:"gateway_order_ref"`
	OrderID         int64     `db:"order_id"`
	MilestoneID     *int64    `db:"milestone_id"`
	LinkID          *int64    `db:"link_id"`
	Amount          float64   `db:"amount"`
	Currency        string    `db:"currency"`
	Status          string    `db:"status"`
	TrackingID      string    `db:"tracking_id"`
	BankRef         string    `db:"bank_ref"`
	FailureReason   string    `db:"failure_reason"`
	PaymentDate     string    `db:"payment_date"`
	RawParams       string    `db:"raw_params"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (a attemptRow) ToModel() *orders.Attempt {
	return &orders.Attempt{
		ID:              a.ID,
		GatewayOrderRef: a.GatewayOrderRef,
		OrderID:         a.OrderID,
		MilestoneID:     a.MilestoneID,
		LinkID:          a.LinkID,
		Amount:          a.Amount,
		Currency:        a.Currency,
		Status:          orders.PaymentStatus(a.Status),
		TrackingID:      a.TrackingID,
		BankRef:         a.BankRef,
		FailureReason:   a.FailureReason,
		PaymentDate:     a.PaymentDate,
		RawParams:       a.RawParams,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (s *storageImpl) CreateAttempt(ctx context.Context, req orders.MarkPendingRequest) (*orders.Attempt, error) {
	params := map[string]interface{}{
		"gateway_order_ref": req.GatewayOrderRef,
		"order_id":          req.OrderID,
		"milestone_id":      req.MilestoneID,
		"link_id":           req.LinkID,
		"amount":            req.Amount,
		"currency":          req.Currency,
		"status":            string(orders.StatusPending),
		"created_at":        s.now(),
		"updated_at":        s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(attemptsTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetAttempt(ctx, orders.GetAttemptCriteria{ID: &id})
}

func (s *storageImpl) GetAttempt(ctx context.Context, criteria orders.GetAttemptCriteria) (*orders.Attempt, error) {
	query := s.stmpBuilder().
		Select(attemptRowFields).
		From(attemptsTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.GatewayOrderRef != nil {
		query = query.Where(sq.Eq{"gateway_order_ref": *criteria.GatewayOrderRef})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	a, err := scanAttempt(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return a.ToModel(), nil
}

func (s *storageImpl) ListAttempts(ctx context.Context, criteria orders.ListAttemptsCriteria) ([]*orders.Attempt, error) {
	query := s.stmpBuilder().
		Select(attemptRowFields).
		From(attemptsTable)

	if criteria.OrderID != nil {
		query = query.Where(sq.Eq{"order_id": *criteria.OrderID})
	}
	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}
	if criteria.OlderThan != nil {
		query = query.Where(sq.Lt{"created_at": *criteria.OlderThan})
	}

	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}

	query = query.OrderBy("created_at ASC")

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*orders.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, a.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}

func (s *storageImpl) LatestResolvedAttempt(ctx context.Context, orderID int64) (*orders.Attempt, error) {
	q, args, err := s.stmpBuilder().
		Select(attemptRowFields).
		From(attemptsTable).
		Where(sq.Eq{"order_id": orderID}).
		Where(sq.NotEq{"status": string(orders.StatusPending)}).
		OrderBy("updated_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	a, err := scanAttempt(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return a.ToModel(), nil
}

// ResolveAttempt applies one terminal gateway verdict. The attempt row is the
// concurrency gate: only the update that flips it off Pending gets to touch
// milestone, order, and link rows, all inside one transaction. Everyone else
// sees Applied=false and the stored state.
func (s *storageImpl) ResolveAttempt(ctx context.Context, req orders.MarkResolvedRequest) (*orders.ResolveOutcome, error) {
	attempt, err := s.GetAttempt(ctx, orders.GetAttemptCriteria{GatewayOrderRef: &req.GatewayOrderRef})
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, nil
	}

	var applied bool
	err = s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		q, args, err := s.stmpBuilder().
			Update(attemptsTable).
			Set("status", string(req.Status)).
			Set("tracking_id", req.TrackingID).
			Set("bank_ref", req.BankRef).
			Set("failure_reason", req.FailureReason).
			Set("payment_date", req.PaymentDate).
			Set("raw_params", req.RawParams).
			Set("updated_at", s.now()).
			Where(sq.Eq{
				"gateway_order_ref": req.GatewayOrderRef,
				"status":            string(orders.StatusPending),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}

		result, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("result.RowsAffected: %w", err)
		}
		if n == 0 {
			// Lost the race or a replay: the attempt is already terminal.
			return nil
		}
		applied = true

		if req.Status == orders.StatusSuccess {
			return s.applySuccess(ctx, tx, attempt)
		}
		return s.applyNonSuccess(ctx, tx, attempt, req.Status)
	})
	if err != nil {
		return nil, err
	}

	resolved, err := s.GetAttempt(ctx, orders.GetAttemptCriteria{ID: &attempt.ID})
	if err != nil {
		return nil, err
	}
	order, err := s.GetOrder(ctx, orders.GetOrderCriteria{ID: &attempt.OrderID})
	if err != nil {
		return nil, err
	}

	return &orders.ResolveOutcome{Attempt: resolved, Order: order, Applied: applied}, nil
}

// applySuccess marks the paid unit. A full-order payment settles every
// milestone; a milestone payment settles its row and, when it was the last
// unpaid one, the order aggregate. The link that carried the payment is
// consumed.
func (s *storageImpl) applySuccess(ctx context.Context, tx *sqlx.Tx, attempt *orders.Attempt) error {
	if attempt.MilestoneID == nil {
		if err := s.execTx(ctx, tx, s.stmpBuilder().
			Update(milestonesTable).
			Set("payment_status", string(orders.StatusSuccess)).
			Set("updated_at", s.now()).
			Where(sq.Eq{"order_id": attempt.OrderID}).
			Where(sq.NotEq{"payment_status": string(orders.StatusSuccess)})); err != nil {
			return err
		}

		if err := s.markOrderStatus(ctx, tx, attempt.OrderID, orders.StatusSuccess); err != nil {
			return err
		}
		return s.consumeLink(ctx, tx, attempt)
	}

	if err := s.execTx(ctx, tx, s.stmpBuilder().
		Update(milestonesTable).
		Set("payment_status", string(orders.StatusSuccess)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": *attempt.MilestoneID}).
		Where(sq.NotEq{"payment_status": string(orders.StatusSuccess)})); err != nil {
		return err
	}

	// Paying a milestone starts its work.
	if err := s.execTx(ctx, tx, s.stmpBuilder().
		Update(milestonesTable).
		Set("completion_status", string(orders.CompletionInProgress)).
		Set("updated_at", s.now()).
		Where(sq.Eq{
			"id":                *attempt.MilestoneID,
			"completion_status": string(orders.CompletionNotStarted),
		})); err != nil {
		return err
	}

	q, args, err := s.stmpBuilder().
		Select("COUNT(*)").
		From(milestonesTable).
		Where(sq.Eq{"order_id": attempt.OrderID}).
		Where(sq.NotEq{"payment_status": string(orders.StatusSuccess)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}
	var unpaid int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&unpaid); err != nil {
		return fmt.Errorf("row.Scan: %w", err)
	}
	if unpaid == 0 {
		if err := s.markOrderStatus(ctx, tx, attempt.OrderID, orders.StatusSuccess); err != nil {
			return err
		}
	}

	return s.consumeLink(ctx, tx, attempt)
}

// applyNonSuccess records a failed or cancelled verdict without disturbing
// anything a success already settled. The link stays usable for a retry.
func (s *storageImpl) applyNonSuccess(ctx context.Context, tx *sqlx.Tx, attempt *orders.Attempt, status orders.PaymentStatus) error {
	if attempt.MilestoneID != nil {
		if err := s.execTx(ctx, tx, s.stmpBuilder().
			Update(milestonesTable).
			Set("payment_status", string(status)).
			Set("updated_at", s.now()).
			Where(sq.Eq{
				"id":             *attempt.MilestoneID,
				"payment_status": string(orders.StatusPending),
			})); err != nil {
			return err
		}
	}

	return s.execTx(ctx, tx, s.stmpBuilder().
		Update(ordersTable).
		Set("payment_status", string(status)).
		Set("updated_at", s.now()).
		Where(sq.Eq{
			"id":             attempt.OrderID,
			"payment_status": string(orders.StatusPending),
		}))
}

func (s *storageImpl) markOrderStatus(ctx context.Context, tx *sqlx.Tx, orderID int64, status orders.PaymentStatus) error {
	return s.execTx(ctx, tx, s.stmpBuilder().
		Update(ordersTable).
		Set("payment_status", string(status)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": orderID}).
		Where(sq.NotEq{"payment_status": string(status)}))
}

func (s *storageImpl) consumeLink(ctx context.Context, tx *sqlx.Tx, attempt *orders.Attempt) error {
	if attempt.LinkID == nil {
		return nil
	}
	return s.execTx(ctx, tx, s.stmpBuilder().
		Update(linksTable).
		Set("is_used", true).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": *attempt.LinkID}))
}

func (s *storageImpl) execTx(ctx context.Context, tx *sqlx.Tx, query sq.UpdateBuilder) error {
	q, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}
	if _, err = tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("tx.ExecContext: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (attemptRow, error) {
	var a attemptRow
	err := row.Scan(&a.ID, &a.GatewayOrderRef, &a.OrderID, &a.MilestoneID, &a.LinkID,
		&a.Amount, &a.Currency, &a.Status, &a.TrackingID, &a.BankRef,
		&a.FailureReason, &a.PaymentDate, &a.RawParams, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
