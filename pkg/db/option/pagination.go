package option

import (
	"fmt"
	"time"

	"partner-incentives/pkg/db/pagination"

	"gorm.io/gorm"
)

// ApplyPagination applies keyset paging ordered by created_at DESC, idColumn DESC.
// One extra row is fetched so callers can tell whether another page exists.
func ApplyPagination(p pagination.Pagination, idColumn string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		limit := p.Size()

		if p.Cursor != "" && validIdentifier(idColumn) {
			if cursor, err := pagination.DecodeCursor(p.Cursor); err == nil && cursor.ID != "" {
				if createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt); err == nil {
					db = db.Where(
						fmt.Sprintf("((created_at < ?) OR (created_at = ? AND %s < ?))", idColumn),
						createdAt, createdAt, cursor.ID,
					)
				}
			}
		}

		db = db.Order("created_at DESC")
		if validIdentifier(idColumn) {
			db = db.Order(idColumn + " DESC")
		}
		return db.Limit(limit + 1)
	}
}
