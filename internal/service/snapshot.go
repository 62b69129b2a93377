package service

import (
	"context"
	"fmt"

	"naming-registry/internal/domain"
	"naming-registry/internal/repository"
)

// namePartView 单个命名节点的修订视图
type namePartView struct {
	part      domain.NamePart
	revisions []domain.NamePartRevision
	approved  *domain.NamePartRevision // latest APPROVED revision
	pending   *domain.NamePartRevision // the at-most-one PENDING revision
}

// base returns the current-or-pending revision: the PENDING one when it
// exists (it is always newer than the approved one), else the approved one.
func (v *namePartView) base() *domain.NamePartRevision {
	if v.pending != nil {
		return v.pending
	}
	return v.approved
}

// partsSnapshot 一次顶层操作加载一次的全量层级快照
// Built from flat revision rows into an adjacency index so cascades traverse
// in memory instead of re-querying per node.
type partsSnapshot struct {
	views    map[string]*namePartView
	children map[string][]*namePartView // parent id -> children, "" = roots
	order    []string                   // name part ids in first-seen order
}

// loadPartsSnapshot 加载全量修订并建立层级索引
func loadPartsSnapshot(ctx context.Context, repo repository.NamePartsRepository) (*partsSnapshot, error) {
	revisions, err := repo.ListNamePartRevisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load name part revisions: %w", err)
	}

	snap := &partsSnapshot{
		views:    map[string]*namePartView{},
		children: map[string][]*namePartView{},
	}
	for i := range revisions {
		rev := revisions[i]
		v := snap.views[rev.NamePartID]
		if v == nil {
			v = &namePartView{part: domain.NamePart{NamePartID: rev.NamePartID, PartType: rev.PartType}}
			snap.views[rev.NamePartID] = v
			snap.order = append(snap.order, rev.NamePartID)
		}
		v.revisions = append(v.revisions, rev)
		// rows are ordered by sequence id, so the last assignment wins
		switch rev.Status {
		case domain.StatusApproved:
			cp := rev
			v.approved = &cp
		case domain.StatusPending:
			cp := rev
			v.pending = &cp
		}
	}

	// parent references are fixed at propose time, so any revision's parent
	// identifies the node's place in the tree
	for _, id := range snap.order {
		v := snap.views[id]
		parentID := v.revisions[0].ParentID
		snap.children[parentID] = append(snap.children[parentID], v)
	}
	return snap, nil
}

// view 按 id 取节点视图，不存在返回 nil
func (s *partsSnapshot) view(namePartID string) *namePartView {
	return s.views[namePartID]
}

// mnemonicPath 当前（current-or-pending）助记符路径，根到节点
// Positional: root-level entries may be empty strings. Returns nil when the
// node or one of its ancestors does not resolve.
func (s *partsSnapshot) mnemonicPath(namePartID string) []string {
	var path []string
	for cur := namePartID; cur != ""; {
		v := s.views[cur]
		if v == nil {
			return nil
		}
		rev := v.base()
		if rev == nil {
			return nil
		}
		path = append(path, rev.Mnemonic)
		cur = rev.ParentID
	}
	reverse(path)
	return path
}

// approvedMnemonicPath 仅经已审批修订的助记符路径
// override substitutes revisions that are being approved in the current
// operation. Returns nil when any ancestor lacks an approved revision or is
// deleted.
func (s *partsSnapshot) approvedMnemonicPath(namePartID string, override map[string]*domain.NamePartRevision) []string {
	var path []string
	for cur := namePartID; cur != ""; {
		v := s.views[cur]
		if v == nil {
			return nil
		}
		rev := override[cur]
		if rev == nil {
			rev = v.approved
		}
		if rev == nil || rev.Deleted {
			return nil
		}
		path = append(path, rev.Mnemonic)
		cur = rev.ParentID
	}
	reverse(path)
	return path
}

// childrenOf 子节点列表（基于首条修订的 parent 引用）
func (s *partsSnapshot) childrenOf(namePartID string) []*namePartView {
	return s.children[namePartID]
}

func reverse(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
