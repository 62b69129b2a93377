package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"naming-registry/internal/convention"
	"naming-registry/internal/domain"
	"naming-registry/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NamePartService 命名层级服务
// Drives the per-node revision state machine:
//
//	(none) --propose--> PENDING(add) --approve--> APPROVED
//	APPROVED --propose modify/delete--> PENDING --approve--> APPROVED
//	PENDING --cancel/reject--> CANCELLED/REJECTED
//
// Every operation loads one snapshot, validates against the convention,
// and commits all resulting writes as a single change set.
type NamePartService struct {
	store  repository.Store
	conv   convention.NamingConvention
	logger *zap.Logger
}

// NewNamePartService 创建命名层级服务
func NewNamePartService(store repository.Store, conv convention.NamingConvention, logger *zap.Logger) *NamePartService {
	return &NamePartService{
		store:  store,
		conv:   conv,
		logger: logger,
	}
}

// AddNamePartRequest 新增节点提案请求
type AddNamePartRequest struct {
	PartType    domain.NamePartType
	ParentID    string // empty = hierarchy root
	Name        string
	Mnemonic    string
	Description string
	RequestedBy string
	Comment     string
}

// AddNamePart 提案新增节点（产生 PENDING 修订）
func (s *NamePartService) AddNamePart(ctx context.Context, req AddNamePartRequest) (*domain.NamePartRevision, error) {
	if !req.PartType.Valid() {
		return nil, domain.Preconditionf("unknown name part type %q", req.PartType)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Preconditionf("name is required")
	}

	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}

	var parentPath []string
	if req.ParentID != "" {
		pv := snap.view(req.ParentID)
		if pv == nil {
			return nil, fmt.Errorf("parent name part %s: %w", req.ParentID, domain.ErrNotFound)
		}
		if pv.part.PartType != req.PartType {
			return nil, domain.Preconditionf("parent is of type %s, not %s", pv.part.PartType, req.PartType)
		}
		base := pv.base()
		if base == nil || base.Deleted {
			return nil, domain.Preconditionf("parent name part is deleted or being deleted")
		}
		parentPath = snap.mnemonicPath(req.ParentID)
		if parentPath == nil {
			return nil, fmt.Errorf("parent name part %s path: %w", req.ParentID, domain.ErrNotFound)
		}
	}

	if err := s.checkMnemonic(snap, req.PartType, req.ParentID, parentPath, req.Mnemonic, ""); err != nil {
		return nil, err
	}

	part := domain.NamePart{NamePartID: uuid.NewString(), PartType: req.PartType}
	rev := &domain.NamePartRevision{
		NamePartID:       part.NamePartID,
		PartType:         req.PartType,
		RequestedBy:      req.RequestedBy,
		RequestDate:      time.Now().UTC(),
		RequesterComment: req.Comment,
		ParentID:         req.ParentID,
		Name:             strings.TrimSpace(req.Name),
		Mnemonic:         req.Mnemonic,
		Description:      req.Description,
		MnemonicEqClass:  s.eqClass(req.Mnemonic),
		Status:           domain.StatusPending,
	}

	cs := &repository.ChangeSet{
		NewNameParts:         []domain.NamePart{part},
		NewNamePartRevisions: []*domain.NamePartRevision{rev},
	}
	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to add name part: %w", err)
	}

	s.logger.Info("Proposed name part addition",
		zap.String("name_part_id", part.NamePartID),
		zap.String("part_type", string(req.PartType)),
		zap.String("mnemonic", req.Mnemonic),
		zap.String("requested_by", req.RequestedBy),
	)
	return rev, nil
}

// ModifyNamePartRequest 修改节点提案请求
type ModifyNamePartRequest struct {
	NamePartID  string
	Name        string
	Mnemonic    string
	Description string
	RequestedBy string
	Comment     string
}

// ModifyNamePart 提案修改节点
// An existing PENDING revision is cancelled first (auto-supersede). The
// parent reference is never reassigned.
func (s *NamePartService) ModifyNamePart(ctx context.Context, req ModifyNamePartRequest) (*domain.NamePartRevision, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, domain.Preconditionf("name is required")
	}

	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	v := snap.view(req.NamePartID)
	if v == nil {
		return nil, fmt.Errorf("name part %s: %w", req.NamePartID, domain.ErrNotFound)
	}
	base := v.base()
	if base == nil {
		return nil, fmt.Errorf("name part %s has no live revision: %w", req.NamePartID, domain.ErrNotFound)
	}
	if base.Deleted {
		return nil, domain.Preconditionf("name part is deleted or being deleted")
	}

	var parentPath []string
	if base.ParentID != "" {
		parentPath = snap.mnemonicPath(base.ParentID)
		if parentPath == nil {
			return nil, fmt.Errorf("name part %s parent path: %w", req.NamePartID, domain.ErrNotFound)
		}
	}

	if req.Mnemonic != base.Mnemonic {
		if err := s.checkMnemonic(snap, v.part.PartType, base.ParentID, parentPath, req.Mnemonic, req.NamePartID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	cs := &repository.ChangeSet{}
	if v.pending != nil {
		cs.StatusUpdates = append(cs.StatusUpdates, repository.RevisionStatusUpdate{
			SequenceID:       v.pending.SequenceID,
			Status:           domain.StatusCancelled,
			ProcessedBy:      req.RequestedBy,
			ProcessDate:      now,
			ProcessorComment: "superseded by a newer proposal",
		})
	}

	rev := &domain.NamePartRevision{
		NamePartID:       req.NamePartID,
		PartType:         v.part.PartType,
		RequestedBy:      req.RequestedBy,
		RequestDate:      now,
		RequesterComment: req.Comment,
		ParentID:         base.ParentID,
		Name:             strings.TrimSpace(req.Name),
		Mnemonic:         req.Mnemonic,
		Description:      req.Description,
		MnemonicEqClass:  s.eqClass(req.Mnemonic),
		Status:           domain.StatusPending,
	}
	cs.NewNamePartRevisions = append(cs.NewNamePartRevisions, rev)

	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to modify name part: %w", err)
	}

	s.logger.Info("Proposed name part modification",
		zap.String("name_part_id", req.NamePartID),
		zap.String("mnemonic", req.Mnemonic),
		zap.String("requested_by", req.RequestedBy),
	)
	return rev, nil
}

// DeleteNamePartRequest 删除节点提案请求
type DeleteNamePartRequest struct {
	NamePartID  string
	RequestedBy string
	Comment     string
}

// DeleteNamePart 提案删除节点（递归到整棵子树，原子提交）
// Idempotent: re-invoking on an already-deleted or pending-deleted node
// returns the existing revision without creating a duplicate.
func (s *NamePartService) DeleteNamePart(ctx context.Context, req DeleteNamePartRequest) (*domain.NamePartRevision, error) {
	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	v := snap.view(req.NamePartID)
	if v == nil {
		return nil, fmt.Errorf("name part %s: %w", req.NamePartID, domain.ErrNotFound)
	}
	base := v.base()
	if base == nil {
		return nil, fmt.Errorf("name part %s has no live revision: %w", req.NamePartID, domain.ErrNotFound)
	}
	if base.Deleted {
		return base, nil
	}

	now := time.Now().UTC()
	cs := &repository.ChangeSet{}
	var rootRev *domain.NamePartRevision

	// explicit worklist over the adjacency index
	stack := []*namePartView{v}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		b := n.base()
		if b == nil || b.Deleted {
			continue
		}
		if n.pending != nil {
			cs.StatusUpdates = append(cs.StatusUpdates, repository.RevisionStatusUpdate{
				SequenceID:       n.pending.SequenceID,
				Status:           domain.StatusCancelled,
				ProcessedBy:      req.RequestedBy,
				ProcessDate:      now,
				ProcessorComment: "superseded by delete proposal",
			})
		}

		rev := &domain.NamePartRevision{
			NamePartID:       n.part.NamePartID,
			PartType:         n.part.PartType,
			RequestedBy:      req.RequestedBy,
			RequestDate:      now,
			RequesterComment: req.Comment,
			Deleted:          true,
			ParentID:         b.ParentID,
			Name:             b.Name,
			Mnemonic:         b.Mnemonic,
			Description:      b.Description,
			MnemonicEqClass:  b.MnemonicEqClass,
			Status:           domain.StatusPending,
		}
		cs.NewNamePartRevisions = append(cs.NewNamePartRevisions, rev)
		if n == v {
			rootRev = rev
		}

		stack = append(stack, snap.childrenOf(n.part.NamePartID)...)
	}

	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to delete name part: %w", err)
	}

	s.logger.Info("Proposed name part deletion",
		zap.String("name_part_id", req.NamePartID),
		zap.Int("revisions", len(cs.NewNamePartRevisions)),
		zap.String("requested_by", req.RequestedBy),
	)
	return rootRev, nil
}

// CancelChangesRequest 取消/驳回提案请求
type CancelChangesRequest struct {
	NamePartID     string
	User           string
	Comment        string
	MarkAsRejected bool
}

// CancelChangesForNamePart 取消或驳回节点的待审批修订
// When the cancelled revision was the node's only content (an add) or was a
// delete proposal, descendant pending revisions are cancelled with it so they
// are not orphaned.
func (s *NamePartService) CancelChangesForNamePart(ctx context.Context, req CancelChangesRequest) (*domain.NamePartRevision, error) {
	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	v := snap.view(req.NamePartID)
	if v == nil {
		return nil, fmt.Errorf("name part %s: %w", req.NamePartID, domain.ErrNotFound)
	}
	if v.pending == nil {
		return nil, domain.IllegalStatef("name part %s has no pending revision", req.NamePartID)
	}

	// parent must itself be cancellable
	if parentID := v.pending.ParentID; parentID != "" {
		pv := snap.view(parentID)
		if pv == nil {
			return nil, domain.IllegalStatef("parent of name part %s does not resolve", req.NamePartID)
		}
		if (pv.approved != nil && pv.approved.Deleted) || (pv.pending != nil && pv.pending.Deleted) {
			return nil, domain.IllegalStatef("parent of name part %s is deleted, revision cannot be cancelled", req.NamePartID)
		}
	}

	status := domain.StatusCancelled
	if req.MarkAsRejected {
		status = domain.StatusRejected
	}

	now := time.Now().UTC()
	cs := &repository.ChangeSet{}
	cs.StatusUpdates = append(cs.StatusUpdates, repository.RevisionStatusUpdate{
		SequenceID:       v.pending.SequenceID,
		Status:           status,
		ProcessedBy:      req.User,
		ProcessDate:      now,
		ProcessorComment: req.Comment,
	})

	wasAdd := v.approved == nil
	wasDelete := v.pending.Deleted
	if wasAdd || wasDelete {
		stack := append([]*namePartView{}, snap.childrenOf(req.NamePartID)...)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n.pending != nil {
				cs.StatusUpdates = append(cs.StatusUpdates, repository.RevisionStatusUpdate{
					SequenceID:       n.pending.SequenceID,
					Status:           status,
					ProcessedBy:      req.User,
					ProcessDate:      now,
					ProcessorComment: req.Comment,
				})
			}
			stack = append(stack, snap.childrenOf(n.part.NamePartID)...)
		}
	}

	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to cancel name part changes: %w", err)
	}

	result := *v.pending
	result.Status = status
	result.ProcessedBy = req.User
	result.ProcessDate = &now
	result.ProcessorComment = req.Comment

	s.logger.Info("Processed name part cancellation",
		zap.String("name_part_id", req.NamePartID),
		zap.String("status", string(status)),
		zap.Int("revisions", len(cs.StatusUpdates)),
		zap.String("user", req.User),
	)
	return &result, nil
}

// ApproveRevisionRequest 审批请求
type ApproveRevisionRequest struct {
	SequenceID int64
	User       string
	Comment    string
}

// ApproveNamePartRevision 审批待审批修订
// Approving a delete cascades: descendant pending-delete revisions are
// auto-approved and devices associated with any deleted node get a deleted
// revision, all in one change set. Approving an add or modify re-materializes
// associated devices against the new content.
func (s *NamePartService) ApproveNamePartRevision(ctx context.Context, req ApproveRevisionRequest) (*domain.NamePartRevision, error) {
	rev, err := s.store.GetNamePartRevision(ctx, req.SequenceID)
	if err != nil {
		return nil, fmt.Errorf("revision %d: %w", req.SequenceID, err)
	}
	if rev.Status == domain.StatusApproved {
		return rev, nil
	}
	if rev.Status != domain.StatusPending {
		return nil, domain.IllegalStatef("revision %d is %s, not PENDING", req.SequenceID, rev.Status)
	}

	snap, err := loadPartsSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	v := snap.view(rev.NamePartID)
	if v == nil || v.pending == nil || v.pending.SequenceID != rev.SequenceID {
		return nil, domain.IllegalStatef("revision %d is no longer the pending revision of its name part", req.SequenceID)
	}

	if rev.ParentID != "" {
		pv := snap.view(rev.ParentID)
		if pv == nil || pv.approved == nil || pv.approved.Deleted {
			return nil, domain.IllegalStatef("parent of name part %s has no approved revision, cannot approve", rev.NamePartID)
		}
	}

	now := time.Now().UTC()
	cs := &repository.ChangeSet{}
	if rev.Deleted {
		if err := s.cascadeDeleteApproval(ctx, snap, v, req, now, cs); err != nil {
			return nil, err
		}
	} else {
		cs.StatusUpdates = append(cs.StatusUpdates, repository.RevisionStatusUpdate{
			SequenceID:       rev.SequenceID,
			Status:           domain.StatusApproved,
			ProcessedBy:      req.User,
			ProcessDate:      now,
			ProcessorComment: req.Comment,
		})
		if err := s.rematerializeDevices(ctx, snap, rev, now, cs); err != nil {
			return nil, err
		}
	}

	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to approve revision: %w", err)
	}

	result := *rev
	result.Status = domain.StatusApproved
	result.ProcessedBy = req.User
	result.ProcessDate = &now
	result.ProcessorComment = req.Comment

	s.logger.Info("Approved name part revision",
		zap.Int64("sequence_id", rev.SequenceID),
		zap.String("name_part_id", rev.NamePartID),
		zap.Bool("deleted", rev.Deleted),
		zap.Int("status_updates", len(cs.StatusUpdates)),
		zap.Int("device_revisions", len(cs.NewDeviceRevisions)),
		zap.String("user", req.User),
	)
	return &result, nil
}

// cascadeDeleteApproval collects the approval of a delete proposal: the
// node's own pending revision, every descendant pending-delete revision, and
// a deleted revision for every device directly associated with an affected
// node.
func (s *NamePartService) cascadeDeleteApproval(ctx context.Context, snap *partsSnapshot, root *namePartView, req ApproveRevisionRequest, now time.Time, cs *repository.ChangeSet) error {
	currentDevices, err := s.store.ListCurrentDeviceRevisions(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to load current devices: %w", err)
	}
	devicesByPart := map[string][]domain.DeviceRevision{}
	for _, d := range currentDevices {
		devicesByPart[d.SectionID] = append(devicesByPart[d.SectionID], d)
		devicesByPart[d.DeviceTypeID] = append(devicesByPart[d.DeviceTypeID], d)
	}

	deletedDevices := map[string]bool{}
	stack := []*namePartView{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n == root || (n.pending != nil && n.pending.Deleted) {
			cs.StatusUpdates = append(cs.StatusUpdates, repository.RevisionStatusUpdate{
				SequenceID:       n.pending.SequenceID,
				Status:           domain.StatusApproved,
				ProcessedBy:      req.User,
				ProcessDate:      now,
				ProcessorComment: req.Comment,
			})
			for _, d := range devicesByPart[n.part.NamePartID] {
				if deletedDevices[d.DeviceID] {
					continue
				}
				deletedDevices[d.DeviceID] = true
				del := d
				del.RequestedBy = "" // system-initiated
				del.RequestDate = now
				del.Deleted = true
				cs.NewDeviceRevisions = append(cs.NewDeviceRevisions, &del)
			}
		}
		stack = append(stack, snap.childrenOf(n.part.NamePartID)...)
	}
	return nil
}

// rematerializeDevices re-derives convention names of devices associated with
// a name part whose add/modify revision is being approved. Devices whose
// derived name changes get a new revision; the new names are re-checked for
// uniqueness.
func (s *NamePartService) rematerializeDevices(ctx context.Context, snap *partsSnapshot, rev *domain.NamePartRevision, now time.Time, cs *repository.ChangeSet) error {
	currentDevices, err := s.store.ListCurrentDeviceRevisions(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to load current devices: %w", err)
	}

	override := map[string]*domain.NamePartRevision{rev.NamePartID: rev}

	// first pass: derive the new name of every affected device
	renamed := map[string]*domain.DeviceRevision{}
	for i := range currentDevices {
		d := currentDevices[i]
		if d.SectionID != rev.NamePartID && d.DeviceTypeID != rev.NamePartID {
			continue
		}
		sectionPath := snap.approvedMnemonicPath(d.SectionID, override)
		deviceTypePath := snap.approvedMnemonicPath(d.DeviceTypeID, override)
		name := s.conv.ConventionName(sectionPath, deviceTypePath, d.InstanceIndex)
		if name == "" {
			return domain.Preconditionf("device %s would lose its convention name", d.DeviceID)
		}
		if name == d.ConventionName {
			continue
		}
		newRev := d
		newRev.RequestedBy = "" // system-initiated
		newRev.RequestDate = now
		newRev.ConventionName = name
		newRev.ConventionNameEqClass = s.conv.EquivalenceClassRepresentative(name)
		renamed[d.DeviceID] = &newRev
	}
	if len(renamed) == 0 {
		return nil
	}

	// second pass: each new name must be unique against unaffected devices'
	// current classes and the other renamed devices' new classes
	seen := map[string]string{} // eq class -> device id
	for _, d := range currentDevices {
		if renamed[d.DeviceID] != nil {
			continue
		}
		seen[d.ConventionNameEqClass] = d.DeviceID
	}
	for _, nr := range renamed {
		if otherID, ok := seen[nr.ConventionNameEqClass]; ok && otherID != nr.DeviceID {
			return domain.Preconditionf("derived convention name %q conflicts with device %s", nr.ConventionName, otherID)
		}
		seen[nr.ConventionNameEqClass] = nr.DeviceID
		cs.NewDeviceRevisions = append(cs.NewDeviceRevisions, nr)
	}
	return nil
}

// checkMnemonic 校验助记符合法性与唯一性
// An empty mnemonic is allowed only at levels where none is required; it is
// never subject to uniqueness checks.
func (s *NamePartService) checkMnemonic(snap *partsSnapshot, partType domain.NamePartType, parentID string, parentPath []string, mnemonic, ignoreID string) error {
	if mnemonic == "" {
		if s.conv.IsMnemonicRequired(partType, parentPath) {
			return domain.Preconditionf("a mnemonic is required at this level")
		}
		return nil
	}
	if !s.conv.IsNameValid(partType, parentPath, mnemonic) {
		return domain.Preconditionf("mnemonic %q is not valid at this level", mnemonic)
	}
	if !s.isMnemonicUnique(snap, partType, parentID, parentPath, mnemonic, ignoreID) {
		return domain.Preconditionf("mnemonic %q conflicts with an existing name", mnemonic)
	}
	return nil
}

// isMnemonicUnique 唯一性检查
// A same-parent equivalence-class match always conflicts; otherwise the
// convention decides whether the two paths may coexist. ignoreID exempts the
// entity itself so renaming to an equivalent-looking mnemonic succeeds.
func (s *NamePartService) isMnemonicUnique(snap *partsSnapshot, partType domain.NamePartType, parentID string, parentPath []string, mnemonic, ignoreID string) bool {
	class := s.conv.EquivalenceClassRepresentative(mnemonic)
	candidatePath := append(append([]string{}, parentPath...), mnemonic)

	for _, id := range snap.order {
		if id == ignoreID {
			continue
		}
		v := snap.views[id]
		rev := v.base()
		if rev == nil || rev.Deleted {
			continue
		}
		if rev.Mnemonic == "" || rev.MnemonicEqClass != class {
			continue
		}
		if rev.ParentID == parentID {
			return false
		}
		otherPath := snap.mnemonicPath(id)
		if otherPath == nil {
			continue
		}
		if !s.conv.CanMnemonicsCoexist(candidatePath, partType, otherPath, v.part.PartType) {
			return false
		}
	}
	return true
}

func (s *NamePartService) eqClass(mnemonic string) string {
	if mnemonic == "" {
		return ""
	}
	return s.conv.EquivalenceClassRepresentative(mnemonic)
}
