package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
)

func strPtr(s string) *string { return &s }

func statusPtr(s models.LocalStatus) *models.LocalStatus { return &s }

func int64Ptr(v int64) *int64 { return &v }

// inTx runs fn inside one transaction, rolling back on error or panic.
func inTx(ctx context.Context, db *repository.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
