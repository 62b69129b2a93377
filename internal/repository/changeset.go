package repository

import (
	"context"
	"time"

	"naming-registry/internal/domain"
)

// RevisionStatusUpdate 修订状态迁移
// The only in-place mutation the store ever performs: status plus the three
// processing fields, set exactly once when a revision leaves PENDING.
type RevisionStatusUpdate struct {
	SequenceID       int64
	Status           domain.RevisionStatus
	ProcessedBy      string
	ProcessDate      time.Time
	ProcessorComment string
}

// ChangeSet 一次服务操作产生的全部写入，必须原子提交
// A cascade (parent revision + descendant revisions + device revisions) either
// commits as a whole or not at all. Sequence ids of new revisions are assigned
// by the store on apply and written back into the slices.
type ChangeSet struct {
	NewNameParts         []domain.NamePart
	NewNamePartRevisions []*domain.NamePartRevision
	StatusUpdates        []RevisionStatusUpdate
	NewDevices           []domain.Device
	NewDeviceRevisions   []*domain.DeviceRevision
}

// Empty reports whether the change set carries no writes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.NewNameParts) == 0 &&
		len(cs.NewNamePartRevisions) == 0 &&
		len(cs.StatusUpdates) == 0 &&
		len(cs.NewDevices) == 0 &&
		len(cs.NewDeviceRevisions) == 0
}

// ChangeSetApplier 原子提交变更集
// Must guarantee at most one PENDING revision per name part: a second
// concurrent proposal fails with domain.ErrPendingExists. Status updates are
// applied before new revision inserts so a cancel-then-repropose in one change
// set does not trip the single-pending constraint.
type ChangeSetApplier interface {
	ApplyChangeSet(ctx context.Context, cs *ChangeSet) error
}

// Store 修订存储完整接口
type Store interface {
	NamePartsRepository
	DevicesRepository
	ChangeSetApplier
}
