package linkexpiry

import (
	"context"
	"time"
)

type (
	// Links retires overdue payment links.
	Links interface {
		// SweepExpired flags every live link whose expires_at is not after
		// now and returns how many were affected.
		SweepExpired(ctx context.Context, now time.Time) (int64, error)
	}
)
