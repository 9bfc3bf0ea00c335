package service

import (
	"context"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Clock returns the current time. Services default to UTC wall time; tests
// swap it through SetClock.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// EventPublisher receives committed state changes. Implemented by the ws hub
// and the kafka publisher in internal/events.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// withTx runs fn inside one transaction. Any error from fn, a panic, or a
// failed commit rolls everything back.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// publish delivers ev after commit. Delivery failures never reach the caller.
func publish(ctx context.Context, pub EventPublisher, log *zap.Logger, ev domain.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("event publish failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// pageBounds clamps page/limit query values and returns limit and offset.
func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit, (page - 1) * limit
}
