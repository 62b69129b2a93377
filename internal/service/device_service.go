package service

import (
	"context"
	"fmt"
	"time"

	"naming-registry/internal/convention"
	"naming-registry/internal/domain"
	"naming-registry/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceService 设备服务
// Device edits commit immediately (validate-then-append); there is no
// approval cycle. Each operation appends at most one revision per device.
type DeviceService struct {
	store  repository.Store
	conv   convention.NamingConvention
	logger *zap.Logger
}

// NewDeviceService 创建设备服务
func NewDeviceService(store repository.Store, conv convention.NamingConvention, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		store:  store,
		conv:   conv,
		logger: logger,
	}
}

// DeviceDefinition 设备定义（新增/批量导入共用）
type DeviceDefinition struct {
	SectionID      string
	DeviceTypeID   string
	InstanceIndex  string
	AdditionalInfo string
}

// AddDeviceRequest 新增设备请求
type AddDeviceRequest struct {
	DeviceDefinition
	RequestedBy string
}

// AddDevice 新增设备
func (s *DeviceService) AddDevice(ctx context.Context, req AddDeviceRequest) (*domain.DeviceRevision, error) {
	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	current, err := s.store.ListCurrentDeviceRevisions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load current devices: %w", err)
	}
	existing := map[string]string{} // eq class -> device id
	for _, d := range current {
		existing[d.ConventionNameEqClass] = d.DeviceID
	}

	rev, err := s.buildDeviceRevision(snap, existing, req.DeviceDefinition, req.RequestedBy, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	cs := &repository.ChangeSet{
		NewDevices:         []domain.Device{{DeviceID: rev.DeviceID}},
		NewDeviceRevisions: []*domain.DeviceRevision{rev},
	}
	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to add device: %w", err)
	}

	s.logger.Info("Added device",
		zap.String("device_id", rev.DeviceID),
		zap.String("convention_name", rev.ConventionName),
		zap.String("requested_by", req.RequestedBy),
	)
	return rev, nil
}

// ModifyDeviceRequest 修改设备请求
type ModifyDeviceRequest struct {
	DeviceID string
	DeviceDefinition
	RequestedBy string
}

// ModifyDevice 修改设备
// A true no-op (identical section, device type, instance index, convention
// name and additional info) returns the current revision without a new row.
func (s *DeviceService) ModifyDevice(ctx context.Context, req ModifyDeviceRequest) (*domain.DeviceRevision, error) {
	cur, err := s.currentRevision(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if cur.Deleted {
		return nil, domain.Preconditionf("device is deleted")
	}

	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}

	sectionPath, deviceTypePath, err := s.resolveDeviceParts(snap, req.SectionID, req.DeviceTypeID)
	if err != nil {
		return nil, err
	}
	if !s.conv.IsInstanceIndexValid(req.InstanceIndex) {
		return nil, domain.Preconditionf("instance index %q is not valid", req.InstanceIndex)
	}
	name := s.conv.ConventionName(sectionPath, deviceTypePath, req.InstanceIndex)
	if name == "" {
		return nil, domain.Preconditionf("hierarchy is too shallow to form a device name")
	}

	proposed := domain.DeviceRevision{
		SectionID:      req.SectionID,
		DeviceTypeID:   req.DeviceTypeID,
		InstanceIndex:  req.InstanceIndex,
		AdditionalInfo: req.AdditionalInfo,
		ConventionName: name,
	}
	if cur.SameContent(&proposed) {
		return cur, nil
	}

	class := s.conv.EquivalenceClassRepresentative(name)
	current, err := s.store.ListCurrentDeviceRevisions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load current devices: %w", err)
	}
	for _, d := range current {
		if d.DeviceID == req.DeviceID {
			continue
		}
		if d.ConventionNameEqClass == class {
			return nil, domain.Preconditionf("convention name %q conflicts with device %s", name, d.DeviceID)
		}
	}

	rev := &domain.DeviceRevision{
		DeviceID:              req.DeviceID,
		RequestedBy:           req.RequestedBy,
		RequestDate:           time.Now().UTC(),
		SectionID:             req.SectionID,
		DeviceTypeID:          req.DeviceTypeID,
		InstanceIndex:         req.InstanceIndex,
		AdditionalInfo:        req.AdditionalInfo,
		ConventionName:        name,
		ConventionNameEqClass: class,
	}
	cs := &repository.ChangeSet{NewDeviceRevisions: []*domain.DeviceRevision{rev}}
	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to modify device: %w", err)
	}

	s.logger.Info("Modified device",
		zap.String("device_id", req.DeviceID),
		zap.String("convention_name", name),
		zap.String("requested_by", req.RequestedBy),
	)
	return rev, nil
}

// DeleteDeviceRequest 删除设备请求
type DeleteDeviceRequest struct {
	DeviceID    string
	RequestedBy string
}

// DeleteDevice 删除设备（幂等）
func (s *DeviceService) DeleteDevice(ctx context.Context, req DeleteDeviceRequest) (*domain.DeviceRevision, error) {
	cur, err := s.currentRevision(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if cur.Deleted {
		return cur, nil
	}

	rev := &domain.DeviceRevision{}
	*rev = *cur
	rev.SequenceID = 0
	rev.RequestedBy = req.RequestedBy
	rev.RequestDate = time.Now().UTC()
	rev.Deleted = true

	cs := &repository.ChangeSet{NewDeviceRevisions: []*domain.DeviceRevision{rev}}
	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to delete device: %w", err)
	}

	s.logger.Info("Deleted device",
		zap.String("device_id", req.DeviceID),
		zap.String("convention_name", cur.ConventionName),
		zap.String("requested_by", req.RequestedBy),
	)
	return rev, nil
}

// BatchAddDevices 批量新增设备（全有或全无）
// The part snapshot and the current device list are loaded once for the whole
// batch. The first failing item aborts the batch, identified by its index.
func (s *DeviceService) BatchAddDevices(ctx context.Context, definitions []DeviceDefinition, requestedBy string) ([]*domain.DeviceRevision, error) {
	if len(definitions) == 0 {
		return nil, nil
	}

	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	current, err := s.store.ListCurrentDeviceRevisions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load current devices: %w", err)
	}
	existing := map[string]string{}
	for _, d := range current {
		existing[d.ConventionNameEqClass] = d.DeviceID
	}

	now := time.Now().UTC()
	cs := &repository.ChangeSet{}
	revisions := make([]*domain.DeviceRevision, 0, len(definitions))
	for i, def := range definitions {
		rev, err := s.buildDeviceRevision(snap, existing, def, requestedBy, now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		// later items in the batch must not collide with earlier ones
		existing[rev.ConventionNameEqClass] = rev.DeviceID
		cs.NewDevices = append(cs.NewDevices, domain.Device{DeviceID: rev.DeviceID})
		cs.NewDeviceRevisions = append(cs.NewDeviceRevisions, rev)
		revisions = append(revisions, rev)
	}

	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to batch add devices: %w", err)
	}

	s.logger.Info("Batch added devices",
		zap.Int("count", len(revisions)),
		zap.String("requested_by", requestedBy),
	)
	return revisions, nil
}

// GetDevice 当前修订
func (s *DeviceService) GetDevice(ctx context.Context, deviceID string) (*domain.DeviceRevision, error) {
	return s.currentRevision(ctx, deviceID)
}

// ListDevices 所有设备的当前修订
func (s *DeviceService) ListDevices(ctx context.Context, includeDeleted bool) ([]domain.DeviceRevision, error) {
	return s.store.ListCurrentDeviceRevisions(ctx, includeDeleted)
}

// DeviceHistory 设备修订历史
func (s *DeviceService) DeviceHistory(ctx context.Context, deviceID string) ([]domain.DeviceRevision, error) {
	revs, err := s.store.ListRevisionsForDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, err)
	}
	return revs, nil
}

// buildDeviceRevision validates one definition against the snapshot and the
// accumulated equivalence classes, returning the first revision of a new
// device.
func (s *DeviceService) buildDeviceRevision(snap *partsSnapshot, existing map[string]string, def DeviceDefinition, requestedBy string, now time.Time) (*domain.DeviceRevision, error) {
	sectionPath, deviceTypePath, err := s.resolveDeviceParts(snap, def.SectionID, def.DeviceTypeID)
	if err != nil {
		return nil, err
	}
	if !s.conv.IsInstanceIndexValid(def.InstanceIndex) {
		return nil, domain.Preconditionf("instance index %q is not valid", def.InstanceIndex)
	}
	name := s.conv.ConventionName(sectionPath, deviceTypePath, def.InstanceIndex)
	if name == "" {
		return nil, domain.Preconditionf("hierarchy is too shallow to form a device name")
	}
	class := s.conv.EquivalenceClassRepresentative(name)
	if otherID, ok := existing[class]; ok {
		return nil, domain.Preconditionf("convention name %q conflicts with device %s", name, otherID)
	}

	return &domain.DeviceRevision{
		DeviceID:              uuid.NewString(),
		RequestedBy:           requestedBy,
		RequestDate:           now,
		SectionID:             def.SectionID,
		DeviceTypeID:          def.DeviceTypeID,
		InstanceIndex:         def.InstanceIndex,
		AdditionalInfo:        def.AdditionalInfo,
		ConventionName:        name,
		ConventionNameEqClass: class,
	}, nil
}

// resolveDeviceParts checks that both referenced name parts have approved,
// non-deleted revisions of the right type and returns their approved
// mnemonic paths.
func (s *DeviceService) resolveDeviceParts(snap *partsSnapshot, sectionID, deviceTypeID string) (sectionPath, deviceTypePath []string, err error) {
	sectionPath, err = s.resolvePart(snap, sectionID, domain.NamePartTypeSection)
	if err != nil {
		return nil, nil, err
	}
	deviceTypePath, err = s.resolvePart(snap, deviceTypeID, domain.NamePartTypeDeviceType)
	if err != nil {
		return nil, nil, err
	}
	return sectionPath, deviceTypePath, nil
}

func (s *DeviceService) resolvePart(snap *partsSnapshot, namePartID string, want domain.NamePartType) ([]string, error) {
	v := snap.view(namePartID)
	if v == nil {
		return nil, fmt.Errorf("name part %s: %w", namePartID, domain.ErrNotFound)
	}
	if v.part.PartType != want {
		return nil, domain.Preconditionf("name part %s is of type %s, not %s", namePartID, v.part.PartType, want)
	}
	if v.approved == nil || v.approved.Deleted {
		return nil, domain.Preconditionf("name part %s has no approved revision or is deleted", namePartID)
	}
	path := snap.approvedMnemonicPath(namePartID, nil)
	if path == nil {
		return nil, domain.Preconditionf("hierarchy of name part %s is not fully approved", namePartID)
	}
	return path, nil
}

// currentRevision 设备当前修订（最新序列号）
func (s *DeviceService) currentRevision(ctx context.Context, deviceID string) (*domain.DeviceRevision, error) {
	revs, err := s.store.ListRevisionsForDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, err)
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("device %s: %w", deviceID, domain.ErrNotFound)
	}
	cur := revs[len(revs)-1]
	return &cur, nil
}
