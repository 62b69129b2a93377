package repository

import (
	"context"
	"fmt"
	"sync"

	"naming-registry/internal/domain"
)

// MemoryStore supports running without a database (DB_ENABLED=false) and
// backs the service tests. Same contract as PostgresStore, including the
// single-pending constraint and atomic change sets.
type MemoryStore struct {
	mu sync.RWMutex

	parts           map[string]domain.NamePart
	partRevisions   []domain.NamePartRevision
	devices         map[string]domain.Device
	deviceRevisions []domain.DeviceRevision
	partSeq         int64
	deviceSeq       int64
}

// NewMemoryStore 创建内存修订存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parts:   map[string]domain.NamePart{},
		devices: map[string]domain.Device{},
	}
}

// 确保实现了接口
var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) ListNamePartRevisions(_ context.Context) ([]domain.NamePartRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.NamePartRevision, len(s.partRevisions))
	copy(out, s.partRevisions)
	return out, nil
}

func (s *MemoryStore) ListRevisionsForNamePart(_ context.Context, namePartID string) ([]domain.NamePartRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.parts[namePartID]; !ok {
		return nil, domain.ErrNotFound
	}
	var out []domain.NamePartRevision
	for _, rev := range s.partRevisions {
		if rev.NamePartID == namePartID {
			out = append(out, rev)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetNamePartRevision(_ context.Context, sequenceID int64) (*domain.NamePartRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.partRevisions {
		if s.partRevisions[i].SequenceID == sequenceID {
			rev := s.partRevisions[i]
			return &rev, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) ListDeviceRevisions(_ context.Context) ([]domain.DeviceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DeviceRevision, len(s.deviceRevisions))
	copy(out, s.deviceRevisions)
	return out, nil
}

func (s *MemoryStore) ListRevisionsForDevice(_ context.Context, deviceID string) ([]domain.DeviceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.devices[deviceID]; !ok {
		return nil, domain.ErrNotFound
	}
	var out []domain.DeviceRevision
	for _, rev := range s.deviceRevisions {
		if rev.DeviceID == deviceID {
			out = append(out, rev)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetDeviceRevision(_ context.Context, sequenceID int64) (*domain.DeviceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.deviceRevisions {
		if s.deviceRevisions[i].SequenceID == sequenceID {
			rev := s.deviceRevisions[i]
			return &rev, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) ListCurrentDeviceRevisions(_ context.Context, includeDeleted bool) ([]domain.DeviceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := map[string]domain.DeviceRevision{}
	for _, rev := range s.deviceRevisions {
		latest[rev.DeviceID] = rev // revisions are ordered, last one wins
	}
	var out []domain.DeviceRevision
	for _, rev := range s.deviceRevisions {
		cur, ok := latest[rev.DeviceID]
		if !ok || cur.SequenceID != rev.SequenceID {
			continue
		}
		if cur.Deleted && !includeDeleted {
			continue
		}
		out = append(out, cur)
	}
	return out, nil
}

// ApplyChangeSet 原子提交（互斥锁下全部校验后再写入）
func (s *MemoryStore) ApplyChangeSet(_ context.Context, cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// validate everything before touching state
	for _, upd := range cs.StatusUpdates {
		idx := s.pendingIndexBySeq(upd.SequenceID)
		if idx < 0 {
			return fmt.Errorf("revision %d: %w", upd.SequenceID, domain.ErrNotFound)
		}
	}

	cancelled := map[int64]bool{}
	for _, upd := range cs.StatusUpdates {
		cancelled[upd.SequenceID] = true
	}
	pendingPerPart := map[string]bool{}
	for _, rev := range s.partRevisions {
		if rev.Status == domain.StatusPending && !cancelled[rev.SequenceID] {
			pendingPerPart[rev.NamePartID] = true
		}
	}
	for _, rev := range cs.NewNamePartRevisions {
		if rev.Status == domain.StatusPending {
			if pendingPerPart[rev.NamePartID] {
				return fmt.Errorf("name part %s: %w", rev.NamePartID, domain.ErrPendingExists)
			}
			pendingPerPart[rev.NamePartID] = true
		}
	}

	for _, part := range cs.NewNameParts {
		s.parts[part.NamePartID] = part
	}
	for _, dev := range cs.NewDevices {
		s.devices[dev.DeviceID] = dev
	}
	for _, upd := range cs.StatusUpdates {
		idx := s.pendingIndexBySeq(upd.SequenceID)
		rev := &s.partRevisions[idx]
		rev.Status = upd.Status
		rev.ProcessedBy = upd.ProcessedBy
		t := upd.ProcessDate
		rev.ProcessDate = &t
		rev.ProcessorComment = upd.ProcessorComment
	}
	for _, rev := range cs.NewNamePartRevisions {
		s.partSeq++
		rev.SequenceID = s.partSeq
		s.partRevisions = append(s.partRevisions, *rev)
	}
	for _, rev := range cs.NewDeviceRevisions {
		s.deviceSeq++
		rev.SequenceID = s.deviceSeq
		s.deviceRevisions = append(s.deviceRevisions, *rev)
	}
	return nil
}

// pendingIndexBySeq returns the index of the PENDING revision with the given
// sequence id, or -1. Caller holds the lock.
func (s *MemoryStore) pendingIndexBySeq(sequenceID int64) int {
	for i := range s.partRevisions {
		if s.partRevisions[i].SequenceID == sequenceID && s.partRevisions[i].Status == domain.StatusPending {
			return i
		}
	}
	return -1
}
