package option

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID        int64 `gorm:"primaryKey"`
	CreatedAt time.Time
}

func TestApplyPaginationKeyset(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:option_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&row{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, db.Create(&row{ID: i, CreatedAt: base.Add(time.Duration(i) * time.Minute)}).Error)
	}

	var first []row
	stmt := ApplyPagination(pagination.Pagination{PageSize: 2}).Apply(db.Model(&row{}))
	require.NoError(t, WithOrder("created_at desc, id desc").Apply(stmt).Find(&first).Error)
	require.Len(t, first, 3)
	assert.Equal(t, int64(5), first[0].ID)

	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        "4",
		CreatedAt: first[1].CreatedAt.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	var second []row
	stmt = ApplyPagination(pagination.Pagination{PageToken: token, PageSize: 2}).Apply(db.Model(&row{}))
	require.NoError(t, WithOrder("created_at desc, id desc").Apply(stmt).Find(&second).Error)
	require.Len(t, second, 3)
	assert.Equal(t, int64(3), second[0].ID)
}
