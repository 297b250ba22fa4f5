package txcontext

import (
	"context"

	"gorm.io/gorm"
)

// TxContextKey is the context key for an open gorm transaction.
type TxContextKey struct{}

// WithTx makes tx visible to collaborators called with the returned context.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TxContextKey{}, tx)
}

// DB returns the transaction stored in ctx, or fallback bound to ctx when
// there is none.
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if ctx != nil {
		if tx, ok := ctx.Value(TxContextKey{}).(*gorm.DB); ok && tx != nil {
			return tx.WithContext(ctx)
		}
	}
	return fallback.WithContext(ctx)
}
