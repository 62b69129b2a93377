package service

import (
	"context"
	"errors"
	"testing"

	"naming-registry/internal/convention"
	"naming-registry/internal/domain"
	"naming-registry/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServices(t *testing.T) (*NamePartService, *DeviceService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	conv := convention.NewStandardConvention()
	logger := zap.NewNop()
	return NewNamePartService(store, conv, logger), NewDeviceService(store, conv, logger), store
}

// approvedPart proposes and approves one name part, returning its id.
func approvedPart(t *testing.T, s *NamePartService, partType domain.NamePartType, parentID, name, mnemonic string) string {
	t.Helper()
	ctx := context.Background()
	rev, err := s.AddNamePart(ctx, AddNamePartRequest{
		PartType:    partType,
		ParentID:    parentID,
		Name:        name,
		Mnemonic:    mnemonic,
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	_, err = s.ApproveNamePartRevision(ctx, ApproveRevisionRequest{SequenceID: rev.SequenceID, User: "boris"})
	require.NoError(t, err)
	return rev.NamePartID
}

// approvedSectionChain builds super-section/section/subsection and returns the ids.
func approvedSectionChain(t *testing.T, s *NamePartService, mnemonics [3]string) [3]string {
	t.Helper()
	var ids [3]string
	parent := ""
	for i, m := range mnemonics {
		ids[i] = approvedPart(t, s, domain.NamePartTypeSection, parent, "Section "+m, m)
		parent = ids[i]
	}
	return ids
}

func approvedDeviceTypeChain(t *testing.T, s *NamePartService, mnemonics [3]string) [3]string {
	t.Helper()
	var ids [3]string
	parent := ""
	for i, m := range mnemonics {
		ids[i] = approvedPart(t, s, domain.NamePartTypeDeviceType, parent, "Category "+m, m)
		parent = ids[i]
	}
	return ids
}

func TestAddNamePartLifecycle(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	rev, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		Name:        "Accelerator",
		Mnemonic:    "Acc",
		RequestedBy: "alice",
		Comment:     "initial taxonomy",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rev.Status)
	assert.False(t, rev.Deleted)
	assert.NotEmpty(t, rev.NamePartID)
	assert.Equal(t, "ACC", rev.MnemonicEqClass)

	approved, err := parts.ApproveNamePartRevision(ctx, ApproveRevisionRequest{
		SequenceID: rev.SequenceID,
		User:       "boris",
		Comment:    "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, "boris", approved.ProcessedBy)
	require.NotNil(t, approved.ProcessDate)

	// approving twice is a no-op
	again, err := parts.ApproveNamePartRevision(ctx, ApproveRevisionRequest{SequenceID: rev.SequenceID, User: "boris"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, again.Status)
}

func TestAddNamePartRootMnemonicOptional(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	// root level mnemonic may be empty
	rev, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		Name:        "Conventional Facilities",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	assert.Empty(t, rev.Mnemonic)

	// deeper levels require one
	_, err = parts.ApproveNamePartRevision(ctx, ApproveRevisionRequest{SequenceID: rev.SequenceID, User: "boris"})
	require.NoError(t, err)
	_, err = parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		ParentID:    rev.NamePartID,
		Name:        "Basement",
		RequestedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))
}

func TestAddNamePartParentTypeMismatch(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	sectionID := approvedPart(t, parts, domain.NamePartTypeSection, "", "Accelerator", "Acc")

	_, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeDeviceType,
		ParentID:    sectionID,
		Name:        "Vacuum",
		Mnemonic:    "Vac",
		RequestedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))
}

func TestSinglePendingInvariant(t *testing.T) {
	ctx := context.Background()
	parts, _, store := newTestServices(t)

	id := approvedPart(t, parts, domain.NamePartTypeSection, "", "Accelerator", "Acc")

	first, err := parts.ModifyNamePart(ctx, ModifyNamePartRequest{
		NamePartID:  id,
		Name:        "Accelerator",
		Mnemonic:    "Acl",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, first.Status)

	// the store itself rejects a second concurrent pending revision
	err = store.ApplyChangeSet(ctx, &repository.ChangeSet{
		NewNamePartRevisions: []*domain.NamePartRevision{{
			NamePartID: id,
			PartType:   domain.NamePartTypeSection,
			Name:       "Accelerator",
			Mnemonic:   "Acz",
			Status:     domain.StatusPending,
		}},
	})
	require.ErrorIs(t, err, domain.ErrPendingExists)

	// but the service supersedes through the front door: the previous
	// pending revision is cancelled
	second, err := parts.ModifyNamePart(ctx, ModifyNamePartRequest{
		NamePartID:  id,
		Name:        "Accelerator",
		Mnemonic:    "Acz",
		RequestedBy: "alice",
	})
	require.NoError(t, err)

	prev, err := store.GetNamePartRevision(ctx, first.SequenceID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, prev.Status)
	assert.Equal(t, domain.StatusPending, second.Status)
}

func TestSiblingMnemonicCollision(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	rootID := approvedPart(t, parts, domain.NamePartTypeSection, "", "Accelerator", "Acc")
	approvedPart(t, parts, domain.NamePartTypeSection, rootID, "Low Energy Beam Transport", "LEBT")

	// same equivalence class under the same parent fails even before
	// coexistence rules are consulted
	_, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		ParentID:    rootID,
		Name:        "Lookalike",
		Mnemonic:    "1EBT", // L -> 1 makes this the same class as LEBT
		RequestedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))
}

func TestMnemonicCoexistenceAcrossBranches(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	// two disciplines, each with a category; the same device-type mnemonic
	// must be allowed under different disciplines but not under the same one
	disA := approvedPart(t, parts, domain.NamePartTypeDeviceType, "", "Cryogenics", "Cryo")
	catA := approvedPart(t, parts, domain.NamePartTypeDeviceType, disA, "Magnets", "Mag")
	disB := approvedPart(t, parts, domain.NamePartTypeDeviceType, "", "Vacuum", "Vac")
	catB := approvedPart(t, parts, domain.NamePartTypeDeviceType, disB, "Pumps", "Pmp")

	approvedPart(t, parts, domain.NamePartTypeDeviceType, catA, "Quad Horizontal", "QH")

	// different discipline: allowed
	_, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeDeviceType,
		ParentID:    catB,
		Name:        "Quad Horizontal",
		Mnemonic:    "QH",
		RequestedBy: "alice",
	})
	require.NoError(t, err)

	// same discipline, different category: conflict
	catA2 := approvedPart(t, parts, domain.NamePartTypeDeviceType, disA, "Power Supplies", "PS")
	_, err = parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeDeviceType,
		ParentID:    catA2,
		Name:        "Quad Horizontal",
		Mnemonic:    "QH",
		RequestedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))
}

func TestModifyMnemonicUniquenessExceptItself(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	id := approvedPart(t, parts, domain.NamePartTypeSection, "", "Accelerator", "Acc")

	// renaming to a string in the node's own equivalence class succeeds
	rev, err := parts.ModifyNamePart(ctx, ModifyNamePartRequest{
		NamePartID:  id,
		Name:        "Accelerator",
		Mnemonic:    "ACC",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACC", rev.Mnemonic)
}

func TestModifyDeletedPartFails(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	id := approvedPart(t, parts, domain.NamePartTypeSection, "", "Accelerator", "Acc")
	_, err := parts.DeleteNamePart(ctx, DeleteNamePartRequest{NamePartID: id, RequestedBy: "alice"})
	require.NoError(t, err)

	_, err = parts.ModifyNamePart(ctx, ModifyNamePartRequest{
		NamePartID:  id,
		Name:        "Accelerator",
		Mnemonic:    "Acl",
		RequestedBy: "alice",
	})
	require.Error(t, err)
	assert.True(t, domain.IsPrecondition(err))
}

func TestDeleteCascadeAndApproval(t *testing.T) {
	ctx := context.Background()
	parts, devices, store := newTestServices(t)

	secIDs := approvedSectionChain(t, parts, [3]string{"Acc", "LEBT", "CS"})
	dtIDs := approvedDeviceTypeChain(t, parts, [3]string{"Dis", "Cat", "QH"})

	dev, err := devices.AddDevice(ctx, AddDeviceRequest{
		DeviceDefinition: DeviceDefinition{
			SectionID:     secIDs[2],
			DeviceTypeID:  dtIDs[2],
			InstanceIndex: "1",
		},
		RequestedBy: "alice",
	})
	require.NoError(t, err)

	// proposing delete of the section root creates pending-delete revisions
	// for the whole subtree
	rootDel, err := parts.DeleteNamePart(ctx, DeleteNamePartRequest{
		NamePartID:  secIDs[0],
		RequestedBy: "alice",
		Comment:     "obsolete",
	})
	require.NoError(t, err)
	assert.True(t, rootDel.Deleted)
	assert.Equal(t, domain.StatusPending, rootDel.Status)

	for _, id := range secIDs[1:] {
		revs, err := store.ListRevisionsForNamePart(ctx, id)
		require.NoError(t, err)
		last := revs[len(revs)-1]
		assert.True(t, last.Deleted)
		assert.Equal(t, domain.StatusPending, last.Status)
	}

	// delete is idempotent: proposing again returns the pending revision
	againDel, err := parts.DeleteNamePart(ctx, DeleteNamePartRequest{NamePartID: secIDs[0], RequestedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, rootDel.SequenceID, againDel.SequenceID)

	// approving the root cascades to descendants and associated devices
	_, err = parts.ApproveNamePartRevision(ctx, ApproveRevisionRequest{
		SequenceID: rootDel.SequenceID,
		User:       "boris",
	})
	require.NoError(t, err)

	for _, id := range secIDs {
		revs, err := store.ListRevisionsForNamePart(ctx, id)
		require.NoError(t, err)
		last := revs[len(revs)-1]
		assert.True(t, last.Deleted)
		assert.Equal(t, domain.StatusApproved, last.Status)
	}

	cur, err := devices.GetDevice(ctx, dev.DeviceID)
	require.NoError(t, err)
	assert.True(t, cur.Deleted)
	assert.Empty(t, cur.RequestedBy, "cascade deletion is system-initiated")

	// the device type hierarchy is untouched
	revs, err := store.ListRevisionsForNamePart(ctx, dtIDs[2])
	require.NoError(t, err)
	assert.False(t, revs[len(revs)-1].Deleted)
}

func TestCancelAddCascadesToDescendants(t *testing.T) {
	ctx := context.Background()
	parts, _, store := newTestServices(t)

	root, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		Name:        "Accelerator",
		Mnemonic:    "Acc",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	child, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		ParentID:    root.NamePartID,
		Name:        "LEBT",
		Mnemonic:    "LEBT",
		RequestedBy: "alice",
	})
	require.NoError(t, err)

	cancelled, err := parts.CancelChangesForNamePart(ctx, CancelChangesRequest{
		NamePartID:     root.NamePartID,
		User:           "boris",
		Comment:        "not needed",
		MarkAsRejected: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, cancelled.Status)

	// the child proposal would be orphaned, so it is rejected with the root
	childRev, err := store.GetNamePartRevision(ctx, child.SequenceID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, childRev.Status)
}

func TestCancelWithoutPendingIsIllegalState(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	id := approvedPart(t, parts, domain.NamePartTypeSection, "", "Accelerator", "Acc")
	_, err := parts.CancelChangesForNamePart(ctx, CancelChangesRequest{NamePartID: id, User: "boris"})
	require.Error(t, err)
	assert.True(t, domain.IsIllegalState(err))
}

func TestApproveChildBeforeParentIsIllegalState(t *testing.T) {
	ctx := context.Background()
	parts, _, _ := newTestServices(t)

	root, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		Name:        "Accelerator",
		Mnemonic:    "Acc",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	child, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		ParentID:    root.NamePartID,
		Name:        "LEBT",
		Mnemonic:    "LEBT",
		RequestedBy: "alice",
	})
	require.NoError(t, err)

	_, err = parts.ApproveNamePartRevision(ctx, ApproveRevisionRequest{SequenceID: child.SequenceID, User: "boris"})
	require.Error(t, err)
	assert.True(t, domain.IsIllegalState(err))
}

func TestApproveModifyRematerializesDevices(t *testing.T) {
	ctx := context.Background()
	parts, devices, _ := newTestServices(t)

	secIDs := approvedSectionChain(t, parts, [3]string{"Acc", "LEBT", "CS"})
	dtIDs := approvedDeviceTypeChain(t, parts, [3]string{"Dis", "Cat", "QH"})

	dev, err := devices.AddDevice(ctx, AddDeviceRequest{
		DeviceDefinition: DeviceDefinition{
			SectionID:     secIDs[2],
			DeviceTypeID:  dtIDs[2],
			InstanceIndex: "1",
		},
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, "LEBT-CS:Dis-QH-1", dev.ConventionName)

	// rename the subsection mnemonic and approve
	mod, err := parts.ModifyNamePart(ctx, ModifyNamePartRequest{
		NamePartID:  secIDs[2],
		Name:        "Chopper Section",
		Mnemonic:    "CHP",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	_, err = parts.ApproveNamePartRevision(ctx, ApproveRevisionRequest{SequenceID: mod.SequenceID, User: "boris"})
	require.NoError(t, err)

	cur, err := devices.GetDevice(ctx, dev.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "LEBT-CHP:Dis-QH-1", cur.ConventionName)
	assert.False(t, cur.Deleted)
}

func TestCancelDeleteRestoresApprovedContent(t *testing.T) {
	ctx := context.Background()
	parts, _, store := newTestServices(t)

	secIDs := approvedSectionChain(t, parts, [3]string{"Acc", "LEBT", "CS"})

	del, err := parts.DeleteNamePart(ctx, DeleteNamePartRequest{NamePartID: secIDs[1], RequestedBy: "alice"})
	require.NoError(t, err)

	cancelled, err := parts.CancelChangesForNamePart(ctx, CancelChangesRequest{
		NamePartID: secIDs[1],
		User:       "boris",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, del.SequenceID, cancelled.SequenceID)

	// descendant pending-delete revisions are cancelled with it
	revs, err := store.ListRevisionsForNamePart(ctx, secIDs[2])
	require.NoError(t, err)
	last := revs[len(revs)-1]
	assert.Equal(t, domain.StatusCancelled, last.Status)

	// the approved revision is current again: the part can be modified
	_, err = parts.ModifyNamePart(ctx, ModifyNamePartRequest{
		NamePartID:  secIDs[1],
		Name:        "LEBT",
		Mnemonic:    "LEBT",
		RequestedBy: "alice",
	})
	require.NoError(t, err)
}

// failingStore delegates reads to the wrapped store and fails every write.
type failingStore struct {
	repository.Store
	applyErr error
}

func (s *failingStore) ApplyChangeSet(ctx context.Context, cs *repository.ChangeSet) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	return s.Store.ApplyChangeSet(ctx, cs)
}

func TestDeleteCascadeCommitsNothingWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	parts, _, store := newTestServices(t)

	secIDs := approvedSectionChain(t, parts, [3]string{"Acc", "LEBT", "CS"})

	// a pending child makes the cascade carry status updates as well as new revisions
	_, err := parts.AddNamePart(ctx, AddNamePartRequest{
		PartType:    domain.NamePartTypeSection,
		ParentID:    secIDs[2],
		Name:        "Chopper",
		Mnemonic:    "Chp",
		RequestedBy: "alice",
	})
	require.NoError(t, err)

	before, err := store.ListNamePartRevisions(ctx)
	require.NoError(t, err)

	broken := NewNamePartService(
		&failingStore{Store: store, applyErr: errors.New("connection reset")},
		convention.NewStandardConvention(), zap.NewNop())
	_, err = broken.DeleteNamePart(ctx, DeleteNamePartRequest{NamePartID: secIDs[1], RequestedBy: "alice"})
	require.Error(t, err)

	// nothing of the cascade landed: no cancellations, no delete revisions
	after, err := store.ListNamePartRevisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApproveDeleteCommitsNothingWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	parts, devices, store := newTestServices(t)

	secIDs := approvedSectionChain(t, parts, [3]string{"Acc", "LEBT", "CS"})
	dtIDs := approvedDeviceTypeChain(t, parts, [3]string{"Dis", "Cat", "QH"})
	dev, err := devices.AddDevice(ctx, AddDeviceRequest{
		DeviceDefinition: DeviceDefinition{SectionID: secIDs[2], DeviceTypeID: dtIDs[2], InstanceIndex: "1"},
		RequestedBy:      "alice",
	})
	require.NoError(t, err)

	del, err := parts.DeleteNamePart(ctx, DeleteNamePartRequest{NamePartID: secIDs[1], RequestedBy: "alice"})
	require.NoError(t, err)

	beforeParts, err := store.ListNamePartRevisions(ctx)
	require.NoError(t, err)
	beforeDevices, err := store.ListDeviceRevisions(ctx)
	require.NoError(t, err)

	broken := NewNamePartService(
		&failingStore{Store: store, applyErr: errors.New("connection reset")},
		convention.NewStandardConvention(), zap.NewNop())
	_, err = broken.ApproveNamePartRevision(ctx, ApproveRevisionRequest{SequenceID: del.SequenceID, User: "boris"})
	require.Error(t, err)

	// the delete stayed pending and no system device deletion was written
	afterParts, err := store.ListNamePartRevisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeParts, afterParts)
	afterDevices, err := store.ListDeviceRevisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, beforeDevices, afterDevices)

	// the device is still current under its original name
	current, err := devices.GetDevice(ctx, dev.DeviceID)
	require.NoError(t, err)
	assert.False(t, current.Deleted)
}
