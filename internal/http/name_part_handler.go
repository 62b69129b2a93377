package httpapi

import (
	"net/http"
	"strings"

	"naming-registry/internal/domain"
	"naming-registry/internal/repository"
	"naming-registry/internal/service"

	"go.uber.org/zap"
)

// NamePartHandler 命名层级 Handler
type NamePartHandler struct {
	parts  *service.NamePartService
	tree   *service.TreeService
	logger *zap.Logger
}

// NewNamePartHandler 创建命名层级 Handler
func NewNamePartHandler(parts *service.NamePartService, tree *service.TreeService, logger *zap.Logger) *NamePartHandler {
	return &NamePartHandler{
		parts:  parts,
		tree:   tree,
		logger: logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *NamePartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/parts")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.ListParts(w, r)
	case path == "" && r.Method == http.MethodPost:
		h.AddPart(w, r)
	case path == "tree" && r.Method == http.MethodGet:
		h.Tree(w, r)
	case strings.HasPrefix(path, "revisions/") && strings.HasSuffix(path, "/approve") && r.Method == http.MethodPost:
		seq := strings.TrimSuffix(strings.TrimPrefix(path, "revisions/"), "/approve")
		h.ApproveRevision(w, r, seq)
	case strings.HasSuffix(path, "/history") && r.Method == http.MethodGet:
		h.History(w, r, strings.TrimSuffix(path, "/history"))
	case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPost:
		h.Cancel(w, r, strings.TrimSuffix(path, "/cancel"))
	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodPut:
		h.ModifyPart(w, r, path)
	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodDelete:
		h.DeletePart(w, r, path)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// namePartItem 前端格式
type namePartItem struct {
	NamePartID  string `json:"name_part_id"`
	PartType    string `json:"part_type"`
	SequenceID  int64  `json:"sequence_id"`
	ParentID    string `json:"parent_id,omitempty"`
	Name        string `json:"name"`
	Mnemonic    string `json:"mnemonic,omitempty"`
	Description string `json:"description,omitempty"`
	Deleted     bool   `json:"deleted"`
	Status      string `json:"status"`
	RequestedBy string `json:"requested_by,omitempty"`
	ProcessedBy string `json:"processed_by,omitempty"`
}

func toNamePartItem(rev *domain.NamePartRevision) namePartItem {
	return namePartItem{
		NamePartID:  rev.NamePartID,
		PartType:    string(rev.PartType),
		SequenceID:  rev.SequenceID,
		ParentID:    rev.ParentID,
		Name:        rev.Name,
		Mnemonic:    rev.Mnemonic,
		Description: rev.Description,
		Deleted:     rev.Deleted,
		Status:      string(rev.Status),
		RequestedBy: rev.RequestedBy,
		ProcessedBy: rev.ProcessedBy,
	}
}

// ListParts 扁平列表
func (h *NamePartHandler) ListParts(w http.ResponseWriter, r *http.Request) {
	filter := repository.NamePartsFilter{
		PartType:       domain.NamePartType(r.URL.Query().Get("type")),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}
	revs, err := h.tree.ListNameParts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "ListParts", err)
		return
	}
	items := make([]namePartItem, 0, len(revs))
	for i := range revs {
		items = append(items, toNamePartItem(&revs[i]))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": len(items)}))
}

// Tree 层级树
func (h *NamePartHandler) Tree(w http.ResponseWriter, r *http.Request) {
	partType := domain.NamePartType(r.URL.Query().Get("type"))
	includePending := r.URL.Query().Get("include_pending") == "true"
	nodes, err := h.tree.Tree(r.Context(), partType, includePending)
	if err != nil {
		writeServiceError(w, h.logger, "Tree", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(nodes))
}

// History 修订历史
func (h *NamePartHandler) History(w http.ResponseWriter, r *http.Request, namePartID string) {
	revs, err := h.tree.NamePartHistory(r.Context(), namePartID)
	if err != nil {
		writeServiceError(w, h.logger, "History", err)
		return
	}
	items := make([]namePartItem, 0, len(revs))
	for i := range revs {
		items = append(items, toNamePartItem(&revs[i]))
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

type addPartPayload struct {
	PartType    string `json:"part_type"`
	ParentID    string `json:"parent_id"`
	Name        string `json:"name"`
	Mnemonic    string `json:"mnemonic"`
	Description string `json:"description"`
	Comment     string `json:"comment"`
}

// AddPart 提案新增节点
func (h *NamePartHandler) AddPart(w http.ResponseWriter, r *http.Request) {
	var payload addPartPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	c := callerFromReq(r)
	rev, err := h.parts.AddNamePart(r.Context(), service.AddNamePartRequest{
		PartType:    domain.NamePartType(payload.PartType),
		ParentID:    payload.ParentID,
		Name:        payload.Name,
		Mnemonic:    payload.Mnemonic,
		Description: payload.Description,
		RequestedBy: c.User,
		Comment:     payload.Comment,
	})
	if err != nil {
		writeServiceError(w, h.logger, "AddPart", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toNamePartItem(rev)))
}

type modifyPartPayload struct {
	Name        string `json:"name"`
	Mnemonic    string `json:"mnemonic"`
	Description string `json:"description"`
	Comment     string `json:"comment"`
}

// ModifyPart 提案修改节点
func (h *NamePartHandler) ModifyPart(w http.ResponseWriter, r *http.Request, namePartID string) {
	var payload modifyPartPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	c := callerFromReq(r)
	rev, err := h.parts.ModifyNamePart(r.Context(), service.ModifyNamePartRequest{
		NamePartID:  namePartID,
		Name:        payload.Name,
		Mnemonic:    payload.Mnemonic,
		Description: payload.Description,
		RequestedBy: c.User,
		Comment:     payload.Comment,
	})
	if err != nil {
		writeServiceError(w, h.logger, "ModifyPart", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toNamePartItem(rev)))
}

// DeletePart 提案删除节点（含子树）
func (h *NamePartHandler) DeletePart(w http.ResponseWriter, r *http.Request, namePartID string) {
	c := callerFromReq(r)
	rev, err := h.parts.DeleteNamePart(r.Context(), service.DeleteNamePartRequest{
		NamePartID:  namePartID,
		RequestedBy: c.User,
		Comment:     r.URL.Query().Get("comment"),
	})
	if err != nil {
		writeServiceError(w, h.logger, "DeletePart", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toNamePartItem(rev)))
}

type cancelPayload struct {
	Reject  bool   `json:"reject"`
	Comment string `json:"comment"`
}

// Cancel 取消或驳回待审批修订（驳回需要 editor 角色）
func (h *NamePartHandler) Cancel(w http.ResponseWriter, r *http.Request, namePartID string) {
	var payload cancelPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	c := callerFromReq(r)
	if payload.Reject {
		var ok bool
		if c, ok = requireEditor(w, r); !ok {
			return
		}
	}
	rev, err := h.parts.CancelChangesForNamePart(r.Context(), service.CancelChangesRequest{
		NamePartID:     namePartID,
		User:           c.User,
		Comment:        payload.Comment,
		MarkAsRejected: payload.Reject,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Cancel", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toNamePartItem(rev)))
}

type approvePayload struct {
	Comment string `json:"comment"`
}

// ApproveRevision 审批（需要 editor 角色）
func (h *NamePartHandler) ApproveRevision(w http.ResponseWriter, r *http.Request, seq string) {
	c, ok := requireEditor(w, r)
	if !ok {
		return
	}
	sequenceID := parseInt64(seq, 0)
	if sequenceID <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("invalid revision id"))
		return
	}
	var payload approvePayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	rev, err := h.parts.ApproveNamePartRevision(r.Context(), service.ApproveRevisionRequest{
		SequenceID: sequenceID,
		User:       c.User,
		Comment:    payload.Comment,
	})
	if err != nil {
		writeServiceError(w, h.logger, "ApproveRevision", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toNamePartItem(rev)))
}
