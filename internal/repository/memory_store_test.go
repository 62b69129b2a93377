package repository

import (
	"context"
	"testing"
	"time"

	"naming-registry/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPendingPart(t *testing.T, store *MemoryStore, namePartID string) *domain.NamePartRevision {
	t.Helper()
	rev := &domain.NamePartRevision{
		NamePartID:  namePartID,
		PartType:    domain.NamePartTypeSection,
		RequestDate: time.Now().UTC(),
		Name:        "Seed",
		Status:      domain.StatusPending,
	}
	err := store.ApplyChangeSet(context.Background(), &ChangeSet{
		NewNameParts:         []domain.NamePart{{NamePartID: namePartID, PartType: domain.NamePartTypeSection}},
		NewNamePartRevisions: []*domain.NamePartRevision{rev},
	})
	require.NoError(t, err)
	return rev
}

func TestMemoryApplyChangeSet_FailingRevisionCommitsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedPendingPart(t, store, "part-a")

	// the second revision trips the single-pending constraint; the first,
	// valid one must not land either
	good := &domain.NamePartRevision{
		NamePartID:  "part-b",
		PartType:    domain.NamePartTypeSection,
		RequestDate: time.Now().UTC(),
		Name:        "Other",
		Status:      domain.StatusPending,
	}
	bad := &domain.NamePartRevision{
		NamePartID:  "part-a",
		PartType:    domain.NamePartTypeSection,
		RequestDate: time.Now().UTC(),
		Name:        "Second",
		Status:      domain.StatusPending,
	}
	err := store.ApplyChangeSet(ctx, &ChangeSet{
		NewNameParts:         []domain.NamePart{{NamePartID: "part-b", PartType: domain.NamePartTypeSection}},
		NewNamePartRevisions: []*domain.NamePartRevision{good, bad},
	})
	require.ErrorIs(t, err, domain.ErrPendingExists)

	revs, err := store.ListNamePartRevisions(ctx)
	require.NoError(t, err)
	assert.Len(t, revs, 1)
	assert.Zero(t, good.SequenceID)

	_, err = store.ListRevisionsForNamePart(ctx, "part-b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryApplyChangeSet_FailingStatusUpdateCommitsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seeded := seedPendingPart(t, store, "part-a")

	// second update targets a sequence id that is not pending
	err := store.ApplyChangeSet(ctx, &ChangeSet{
		StatusUpdates: []RevisionStatusUpdate{
			{SequenceID: seeded.SequenceID, Status: domain.StatusCancelled, ProcessedBy: "boris", ProcessDate: time.Now().UTC()},
			{SequenceID: 999, Status: domain.StatusCancelled, ProcessedBy: "boris", ProcessDate: time.Now().UTC()},
		},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	rev, err := store.GetNamePartRevision(ctx, seeded.SequenceID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rev.Status)
}
