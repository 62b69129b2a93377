package repository

import (
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore 修订存储 Postgres 实现
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建 Postgres 修订存储
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// 确保实现了接口
var _ Store = (*PostgresStore)(nil)

// singlePendingIndex 单一 PENDING 约束对应的部分唯一索引
// migrations/001_init.sql: uq_name_part_single_pending
const singlePendingIndex = "uq_name_part_single_pending"

// isSinglePendingViolation reports whether err is the unique violation raised
// when a second PENDING revision is inserted for the same name part.
func isSinglePendingViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505" && pqErr.Constraint == singlePendingIndex
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
