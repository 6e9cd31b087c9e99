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

const (
	ordersTable     = "orders"
	milestonesTable = "milestones"
)

var (
	orderRowFields     = fields(orderRow{})
	milestoneRowFields = fields(milestoneRow{})
)

type orderRow struct {
	ID                       int64     `db:"id"`
	Reference                string    `db:"reference"`
	CustomerName             string    `db:"customer_name"`
	CustomerEmail            string    `db:"customer_email"`
	CustomerPhone            string    `db:"customer_phone"`
	Language                 string    `db:"language"`
	ServiceName              string    `db:"service_name"`
	TotalPrice               float64   `db:"total_price"`
	Currency                 string    `db:"currency"`
	PaymentMethod            string    `db:"payment_method"`
	PaymentStatus            string    `db:"payment_status"`
	RequireSequentialPayment bool      `db:"require_sequential_payment"`
	CreatedAt                time.Time `db:"created_at"`
	UpdatedAt                time.Time `db:"updated_at"`
}

func (o orderRow) ToModel() *orders.Order {
	return &orders.Order{
		ID:                       o.ID,
		Reference:                o.Reference,
		CustomerName:             o.CustomerName,
		CustomerEmail:            o.CustomerEmail,
		CustomerPhone:            o.CustomerPhone,
		Language:                 o.Language,
		ServiceName:              o.ServiceName,
		TotalPrice:               o.TotalPrice,
		Currency:                 o.Currency,
		PaymentMethod:            orders.PaymentMethod(o.PaymentMethod),
		PaymentStatus:            orders.PaymentStatus(o.PaymentStatus),
		RequireSequentialPayment: o.RequireSequentialPayment,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

type milestoneRow struct {
	ID               int64     `db:"id"`
	OrderID          int64     `db:"order_id"`
	Seq              int       `db:"seq"`
	Name             string    `db:"name"`
	Amount           float64   `db:"amount"`
	PaymentStatus    string    `db:"payment_status"`
	CompletionStatus string    `db:"completion_status"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (m milestoneRow) ToModel() *orders.Milestone {
	return &orders.Milestone{
		ID:               m.ID,
		OrderID:          m.OrderID,
		Seq:              m.Seq,
		Name:             m.Name,
		Amount:           m.Amount,
		PaymentStatus:    orders.PaymentStatus(m.PaymentStatus),
		CompletionStatus: orders.CompletionStatus(m.CompletionStatus),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// CreateOrder inserts the order and its milestone plan in one transaction.
// The human-facing reference needs the row id, so it is written in a second
// statement inside the same transaction.
func (s *storageImpl) CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error) {
	requireSeq := true
	if req.RequireSequentialPayment != nil {
		requireSeq = *req.RequireSequentialPayment
	}

	var orderID int64
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		params := map[string]interface{}{
			"reference":                  "",
			"customer_name":              req.CustomerName,
			"customer_email":             req.CustomerEmail,
			"customer_phone":             req.CustomerPhone,
			"language":                   req.Language,
			"service_name":               req.ServiceName,
			"total_price":                req.TotalPrice,
			"currency":                   req.Currency,
			"payment_method":             string(req.PaymentMethod),
			"payment_status":             string(orders.StatusPending),
			"require_sequential_payment": requireSeq,
			"created_at":                 s.now(),
			"updated_at":                 s.now(),
		}

		q, args, err := s.stmpBuilder().
			Insert(ordersTable).
			SetMap(params).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}

		result, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		orderID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("result.LastInsertId: %w", err)
		}

		reference := fmt.Sprintf("NZ-%d-%04d", s.now().Year(), orderID)
		q, args, err = s.stmpBuilder().
			Update(ordersTable).
			Set("reference", reference).
			Where(sq.Eq{"id": orderID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build sql query: %w", err)
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("tx.ExecContext: %w", err)
		}

		for i, m := range req.Milestones {
			params := map[string]interface{}{
				"order_id":          orderID,
				"seq":               i + 1,
				"name":              m.Name,
				"amount":            m.Amount,
				"payment_status":    string(orders.StatusPending),
				"completion_status": string(orders.CompletionNotStarted),
				"created_at":        s.now(),
				"updated_at":        s.now(),
			}

			q, args, err := s.stmpBuilder().
				Insert(milestonesTable).
				SetMap(params).
				ToSql()
			if err != nil {
				return fmt.Errorf("build sql query: %w", err)
			}
			if _, err = tx.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("tx.ExecContext: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrder(ctx, orders.GetOrderCriteria{ID: &orderID})
}

func (s *storageImpl) GetOrder(ctx context.Context, criteria orders.GetOrderCriteria) (*orders.Order, error) {
	query := s.stmpBuilder().
		Select(orderRowFields).
		From(ordersTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Reference != nil {
		query = query.Where(sq.Eq{"reference": *criteria.Reference})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var o orderRow
	err = row.Scan(&o.ID, &o.Reference, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.Language, &o.ServiceName, &o.TotalPrice, &o.Currency, &o.PaymentMethod,
		&o.PaymentStatus, &o.RequireSequentialPayment, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	order := o.ToModel()
	order.Milestones, err = s.listMilestones(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *storageImpl) GetMilestone(ctx context.Context, id int64) (*orders.Milestone, error) {
	q, args, err := s.stmpBuilder().
		Select(milestoneRowFields).
		From(milestonesTable).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var m milestoneRow
	err = row.Scan(&m.ID, &m.OrderID, &m.Seq, &m.Name, &m.Amount,
		&m.PaymentStatus, &m.CompletionStatus, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return m.ToModel(), nil
}

func (s *storageImpl) listMilestones(ctx context.Context, orderID int64) ([]*orders.Milestone, error) {
	q, args, err := s.stmpBuilder().
		Select(milestoneRowFields).
		From(milestonesTable).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*orders.Milestone
	for rows.Next() {
		var m milestoneRow
		err = rows.Scan(&m.ID, &m.OrderID, &m.Seq, &m.Name, &m.Amount,
			&m.PaymentStatus, &m.CompletionStatus, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, m.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}
