package storage

import (
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sherryy67/nazam-core-sub002/internal/infra/sqlite3"
)

type storageImpl struct {
	db  *sqlite3.DB
	now func() time.Time
}

func New(db *sqlite3.DB) *storageImpl {
	return &storageImpl{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *storageImpl) stmpBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// fields lists the db-tagged columns of a row struct, in declaration order.
func fields(data any) string {
	var s string
	r := reflect.TypeOf(data)
	for i := 0; i < r.NumField(); i++ {
		tag := r.Field(i).Tag.Get("db")
		if tag != "" {
			s += tag + ","
		}
	}
	return s[:len(s)-1]
}
