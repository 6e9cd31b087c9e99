package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
)

const linksTable = "payment_links"

var linkRowFields = fields(linkRow{})

type linkRow struct {
	ID          int64     `db:"id"`
	Token       string    `db:"token"`
	OrderID     int64     `db:"order_id"`
	MilestoneID *int64    `db:"milestone_id"`
	URL         string    `db:"url"`
	GeneratedAt time.Time `db:"generated_at"`
	ExpiresAt   time.Time `db:"expires_at"`
	IsExpired   bool      `db:"is_expired"`
	IsUsed      bool      `db:"is_used"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (l linkRow) ToModel() *links.Link {
	return &links.Link{
		ID:          l.ID,
		Token:       l.Token,
		OrderID:     l.OrderID,
		MilestoneID: l.MilestoneID,
		URL:         l.URL,
		GeneratedAt: l.GeneratedAt,
		ExpiresAt:   l.ExpiresAt,
		IsExpired:   l.IsExpired,
		IsUsed:      l.IsUsed,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func (s *storageImpl) CreateLink(ctx context.Context, link links.Link) (*links.Link, error) {
	params := map[string]interface{}{
		"token":        link.Token,
		"order_id":     link.OrderID,
		"milestone_id": link.MilestoneID,
		"url":          link.URL,
		"generated_at": link.GeneratedAt,
		"expires_at":   link.ExpiresAt,
		"is_expired":   false,
		"is_used":      false,
		"created_at":   s.now(),
		"updated_at":   s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(linksTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: payment_links.token") {
			return nil, links.ErrTokenTaken
		}
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetLink(ctx, links.GetCriteria{ID: &id})
}

func (s *storageImpl) GetLink(ctx context.Context, criteria links.GetCriteria) (*links.Link, error) {
	query := s.stmpBuilder().
		Select(linkRowFields).
		From(linksTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Token != nil {
		query = query.Where(sq.Eq{"token": *criteria.Token})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var l linkRow
	err = row.Scan(&l.ID, &l.Token, &l.OrderID, &l.MilestoneID, &l.URL,
		&l.GeneratedAt, &l.ExpiresAt, &l.IsExpired, &l.IsUsed, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return l.ToModel(), nil
}

// ExpireActiveLinks retires every live link for the given payment target, so
// a fresh link is the only one that works. A nil milestone targets the
// full-order link.
func (s *storageImpl) ExpireActiveLinks(ctx context.Context, orderID int64, milestoneID *int64) (int64, error) {
	query := s.stmpBuilder().
		Update(linksTable).
		Set("is_expired", true).
		Set("updated_at", s.now()).
		Where(sq.Eq{
			"order_id":   orderID,
			"is_expired": false,
			"is_used":    false,
		})

	if milestoneID != nil {
		query = query.Where(sq.Eq{"milestone_id": *milestoneID})
	} else {
		query = query.Where("milestone_id IS NULL")
	}

	q, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db.ExecContext: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("result.RowsAffected: %w", err)
	}
	return n, nil
}

func (s *storageImpl) MarkLinkUsed(ctx context.Context, linkID int64) error {
	q, args, err := s.stmpBuilder().
		Update(linksTable).
		Set("is_used", true).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": linkID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sql query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("db.ExecContext: %w", err)
	}
	return nil
}

// SweepExpiredLinks flips the is_expired flag on links whose deadline has
// passed. Expiry checks are live against expires_at; the flag is for queries
// and dashboards.
func (s *storageImpl) SweepExpiredLinks(ctx context.Context, now time.Time) (int64, error) {
	q, args, err := s.stmpBuilder().
		Update(linksTable).
		Set("is_expired", true).
		Set("updated_at", s.now()).
		Where(sq.Eq{"is_expired": false}).
		Where(sq.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db.ExecContext: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("result.RowsAffected: %w", err)
	}
	return n, nil
}
