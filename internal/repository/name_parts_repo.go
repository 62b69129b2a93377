package repository

import (
	"context"

	"naming-registry/internal/domain"
)

// NamePartsFilter 查询过滤器
type NamePartsFilter struct {
	PartType       domain.NamePartType // empty = both hierarchies
	IncludeDeleted bool
}

// NamePartsRepository 命名节点修订存储（append-only）
// Revisions are returned ordered by sequence id ascending.
type NamePartsRepository interface {
	// ListNamePartRevisions 全量修订（服务层据此构建快照）
	ListNamePartRevisions(ctx context.Context) ([]domain.NamePartRevision, error)

	// ListRevisionsForNamePart 单个节点的全部修订历史
	ListRevisionsForNamePart(ctx context.Context, namePartID string) ([]domain.NamePartRevision, error)

	// GetNamePartRevision 按序列号取单条修订
	// Returns domain.ErrNotFound when the id does not resolve.
	GetNamePartRevision(ctx context.Context, sequenceID int64) (*domain.NamePartRevision, error)
}
