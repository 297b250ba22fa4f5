package option

import (
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption narrows a gorm statement.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

func WithOrder(order string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	})
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// ApplyPagination applies a created_at/id keyset cursor and fetches one row
// beyond the page size so callers can tell whether more rows exist.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(page.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil {
				createdAt, timeErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
				id, idErr := strconv.ParseInt(cursor.ID, 10, 64)
				if timeErr == nil && idErr == nil {
					db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
				}
			}
		}
		if page.PageSize > 0 {
			db = db.Limit(page.PageSize + 1)
		}
		return db
	})
}
