package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/subplane/subplane/internal/logger"

	"github.com/jmoiron/sqlx"
)

// tracedQuerier wraps a Querier and logs every query with its duration
type tracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

func newTracedQuerier(q Querier, logger *logger.Logger, txID string) *tracedQuerier {
	return &tracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

func (tq *tracedQuerier) trace(query string, params interface{}, start time.Time, err error) {
	fields := []interface{}{
		"duration_ms", time.Since(start).Milliseconds(),
		"query", query,
		"params", fmt.Sprintf("%+v", params),
	}
	if tq.txID != "" {
		fields = append(fields, "tx_id", tq.txID)
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
		tq.logger.Errorw("database query failed", fields...)
		return
	}
	tq.logger.Debugw("database query completed", fields...)
}

func (tq *tracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	tq.trace(query, args, start, err)
	return result, err
}

func (tq *tracedQuerier) NamedExec(query string, arg interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := tq.Querier.NamedExec(query, arg)
	tq.trace(query, arg, start, err)
	return result, err
}

func (tq *tracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	tq.trace(query, args, start, err)
	return rows, err
}

func (tq *tracedQuerier) NamedQuery(query string, arg interface{}) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := tq.Querier.NamedQuery(query, arg)
	tq.trace(query, arg, start, err)
	return rows, err
}
