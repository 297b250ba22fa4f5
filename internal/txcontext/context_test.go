package txcontext

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestDBUsesTransactionFromContext(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:txcontext?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection: a write that escaped the transaction would block here
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&row{}))

	ctx := context.Background()
	require.NoError(t, DB(ctx, db).Create(&row{ID: 1, Name: "outside"}).Error)

	err = db.Transaction(func(tx *gorm.DB) error {
		txCtx := WithTx(ctx, tx)
		if err := DB(txCtx, db).Create(&row{ID: 2, Name: "inside"}).Error; err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	var count int64
	require.NoError(t, db.Model(&row{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}
