package util

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes signalling the deployed schema is behind the
// application (mid-deploy state, self-healing).
const (
	pgUndefinedColumn = "42703"
	pgUndefinedTable  = "42P01"
)

// IsSchemaLagError reports whether err indicates the content store schema
// is missing a column or relation this build expects.
func IsSchemaLagError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedColumn || pgErr.Code == pgUndefinedTable
	}

	// 字符串兜底：部分驱动路径不保留结构化错误
	errStr := err.Error()
	if strings.Contains(errStr, "does not exist") &&
		(strings.Contains(errStr, "column") || strings.Contains(errStr, "relation")) {
		return true
	}
	return false
}

// ClassifyError buckets an error for logging and alert routing.
// Returns: (isRetryable, errorType)
func ClassifyError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	if IsSchemaLagError(err) {
		// 模式滞后 - 等部署完成自愈，不重试
		return false, "schema_lag"
	}

	errStr := err.Error()

	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		// 唯一约束冲突 - 不可重试（幂等性）
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		// DB 连接问题 - 可重试
		return true, "db_connection_error"
	}

	// context.DeadlineExceeded 也实现了 net.Error，先判断
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}
