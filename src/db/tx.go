package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx runs fn inside a transaction carried by the returned context.
// Nested calls join the outer transaction.
func WithTx(ctx context.Context, base *gorm.DB, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or base when there is none.
func Conn(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return base.WithContext(ctx)
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}
