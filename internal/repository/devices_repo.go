package repository

import (
	"context"

	"naming-registry/internal/domain"
)

// DevicesRepository 设备修订存储（append-only）
// Revisions are returned ordered by sequence id ascending.
type DevicesRepository interface {
	// ListDeviceRevisions 全量设备修订
	ListDeviceRevisions(ctx context.Context) ([]domain.DeviceRevision, error)

	// ListRevisionsForDevice 单个设备的全部修订历史
	ListRevisionsForDevice(ctx context.Context, deviceID string) ([]domain.DeviceRevision, error)

	// GetDeviceRevision 按序列号取单条修订
	// Returns domain.ErrNotFound when the id does not resolve.
	GetDeviceRevision(ctx context.Context, sequenceID int64) (*domain.DeviceRevision, error)

	// ListCurrentDeviceRevisions 每个设备的最新修订
	// includeDeleted=false filters out devices whose latest revision is deleted.
	ListCurrentDeviceRevisions(ctx context.Context, includeDeleted bool) ([]domain.DeviceRevision, error)
}
