package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"naming-registry/internal/domain"
	"naming-registry/internal/repository"
	"naming-registry/internal/store"

	"go.uber.org/zap"
)

// TreeNode 层级树节点（前端格式）
type TreeNode struct {
	NamePartID  string     `json:"name_part_id"`
	Name        string     `json:"name"`
	Mnemonic    string     `json:"mnemonic,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`                 // APPROVED or PENDING
	PendingKind string     `json:"pending_kind,omitempty"` // add / modify / delete
	DeviceCount int        `json:"device_count,omitempty"`
	Children    []TreeNode `json:"children,omitempty"`
}

// TreeService 层级树投影
// Read model only: rebuilt from one snapshot per call, optionally cached in
// Redis. Mutating handlers call Invalidate after every successful write.
type TreeService struct {
	repo   repository.Store
	cache  store.KV // nil = caching disabled
	ttl    time.Duration
	logger *zap.Logger
}

// NewTreeService 创建层级树服务
func NewTreeService(repo repository.Store, cache store.KV, ttl time.Duration, logger *zap.Logger) *TreeService {
	return &TreeService{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func treeCacheKey(partType domain.NamePartType, includePending bool) string {
	return fmt.Sprintf("naming:tree:%s:%t", partType, includePending)
}

// Tree 构建层级树
// includePending=false renders the approved taxonomy only; true overlays
// pending proposals with their kind.
func (s *TreeService) Tree(ctx context.Context, partType domain.NamePartType, includePending bool) ([]TreeNode, error) {
	if !partType.Valid() {
		return nil, domain.Preconditionf("unknown name part type %q", partType)
	}

	key := treeCacheKey(partType, includePending)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var nodes []TreeNode
			if err := json.Unmarshal([]byte(raw), &nodes); err == nil {
				return nodes, nil
			}
		} else if err != store.ErrMiss {
			s.logger.Warn("Tree cache read failed", zap.Error(err))
		}
	}

	snap, err := loadPartsSnapshot(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	counts, err := s.deviceCounts(ctx)
	if err != nil {
		return nil, err
	}

	nodes := s.buildLevel(snap, "", partType, includePending, counts)

	if s.cache != nil {
		if raw, err := json.Marshal(nodes); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
				s.logger.Warn("Tree cache write failed", zap.Error(err))
			}
		}
	}
	return nodes, nil
}

// Invalidate 使缓存失效（所有变体）
func (s *TreeService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, t := range []domain.NamePartType{domain.NamePartTypeSection, domain.NamePartTypeDeviceType} {
		for _, pending := range []bool{false, true} {
			if err := s.cache.Delete(ctx, treeCacheKey(t, pending)); err != nil {
				s.logger.Warn("Tree cache invalidation failed", zap.Error(err))
			}
		}
	}
}

// NamePartHistory 节点修订历史
func (s *TreeService) NamePartHistory(ctx context.Context, namePartID string) ([]domain.NamePartRevision, error) {
	revs, err := s.repo.ListRevisionsForNamePart(ctx, namePartID)
	if err != nil {
		return nil, fmt.Errorf("name part %s: %w", namePartID, err)
	}
	return revs, nil
}

// ListNameParts 扁平列表（按当前修订）
func (s *TreeService) ListNameParts(ctx context.Context, filter repository.NamePartsFilter) ([]domain.NamePartRevision, error) {
	snap, err := loadPartsSnapshot(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	var out []domain.NamePartRevision
	for _, id := range snap.order {
		v := snap.views[id]
		if filter.PartType != "" && v.part.PartType != filter.PartType {
			continue
		}
		rev := v.base()
		if rev == nil {
			continue
		}
		if rev.Deleted && !filter.IncludeDeleted {
			continue
		}
		out = append(out, *rev)
	}
	return out, nil
}

func (s *TreeService) buildLevel(snap *partsSnapshot, parentID string, partType domain.NamePartType, includePending bool, counts map[string]int) []TreeNode {
	var nodes []TreeNode
	for _, v := range snap.childrenOf(parentID) {
		if v.part.PartType != partType {
			continue
		}
		rev, node := s.projectNode(v, includePending)
		if rev == nil {
			continue
		}
		node.DeviceCount = counts[v.part.NamePartID]
		node.Children = s.buildLevel(snap, v.part.NamePartID, partType, includePending, counts)
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Mnemonic != nodes[j].Mnemonic {
			return nodes[i].Mnemonic < nodes[j].Mnemonic
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes
}

// projectNode picks the revision to render and classifies it. Returns a nil
// revision when the node has nothing to show in this view.
func (s *TreeService) projectNode(v *namePartView, includePending bool) (*domain.NamePartRevision, TreeNode) {
	var rev *domain.NamePartRevision
	node := TreeNode{NamePartID: v.part.NamePartID}

	if includePending && v.pending != nil {
		rev = v.pending
		node.Status = string(domain.StatusPending)
		switch {
		case rev.Deleted:
			node.PendingKind = "delete"
		case v.approved == nil:
			node.PendingKind = "add"
		default:
			node.PendingKind = "modify"
		}
	} else if v.approved != nil && !v.approved.Deleted {
		rev = v.approved
		node.Status = string(domain.StatusApproved)
	}
	if rev == nil || (rev.Deleted && !includePending) {
		return nil, node
	}

	node.Name = rev.Name
	node.Mnemonic = rev.Mnemonic
	node.Description = rev.Description
	return rev, node
}

func (s *TreeService) deviceCounts(ctx context.Context) (map[string]int, error) {
	devices, err := s.repo.ListCurrentDeviceRevisions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load current devices: %w", err)
	}
	counts := map[string]int{}
	for _, d := range devices {
		counts[d.SectionID]++
		counts[d.DeviceTypeID]++
	}
	return counts, nil
}
