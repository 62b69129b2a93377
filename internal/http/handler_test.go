package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"naming-registry/internal/convention"
	"naming-registry/internal/domain"
	"naming-registry/internal/repository"
	"naming-registry/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	router *Router
	parts  *service.NamePartService
	tree   *service.TreeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	conv := convention.NewStandardConvention()

	partsSvc := service.NewNamePartService(store, conv, logger)
	devicesSvc := service.NewDeviceService(store, conv, logger)
	treeSvc := service.NewTreeService(store, nil, time.Minute, logger)

	router := NewRouter(logger)
	router.Register(
		NewNamePartHandler(partsSvc, treeSvc, logger),
		NewDeviceHandler(devicesSvc, treeSvc, logger),
	)
	return &testEnv{router: router, parts: partsSvc, tree: treeSvc}
}

// approvedPart proposes and immediately approves a name part, returning its id.
func (e *testEnv) approvedPart(t *testing.T, partType domain.NamePartType, parentID, name, mnemonic string) string {
	t.Helper()
	rev, err := e.parts.AddNamePart(context.Background(), service.AddNamePartRequest{
		PartType:    partType,
		ParentID:    parentID,
		Name:        name,
		Mnemonic:    mnemonic,
		RequestedBy: "alice",
	})
	require.NoError(t, err)
	_, err = e.parts.ApproveNamePartRevision(context.Background(), service.ApproveRevisionRequest{
		SequenceID: rev.SequenceID,
		User:       "bob",
	})
	require.NoError(t, err)
	return rev.NamePartID
}

// approvedSectionChain builds sup > section > subsection, returning the leaf id.
func (e *testEnv) approvedSectionChain(t *testing.T, names, mnemonics [3]string) string {
	t.Helper()
	sup := e.approvedPart(t, domain.NamePartTypeSection, "", names[0], mnemonics[0])
	sec := e.approvedPart(t, domain.NamePartTypeSection, sup, names[1], mnemonics[1])
	return e.approvedPart(t, domain.NamePartTypeSection, sec, names[2], mnemonics[2])
}

func (e *testEnv) approvedDeviceTypeChain(t *testing.T, names, mnemonics [3]string) string {
	t.Helper()
	dis := e.approvedPart(t, domain.NamePartTypeDeviceType, "", names[0], mnemonics[0])
	cat := e.approvedPart(t, domain.NamePartTypeDeviceType, dis, names[1], mnemonics[1])
	return e.approvedPart(t, domain.NamePartTypeDeviceType, cat, names[2], mnemonics[2])
}

func (e *testEnv) do(t *testing.T, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Code   int             `json:"code"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, ResultSuccess, envelope.Code)
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Result, out))
	}
}

func TestPartLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/parts", "alice", "", map[string]any{
		"part_type": "SECTION",
		"name":      "Accelerator",
		"mnemonic":  "Acc",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var item namePartItem
	decodeResult(t, rec, &item)
	assert.Equal(t, "PENDING", item.Status)
	assert.Equal(t, "alice", item.RequestedBy)
	require.NotZero(t, item.SequenceID)

	// approval needs the editor role
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/parts/revisions/%d/approve", item.SequenceID), "bob", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/parts/revisions/%d/approve", item.SequenceID), "bob", "editor", map[string]any{"comment": "fine"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResult(t, rec, &item)
	assert.Equal(t, "APPROVED", item.Status)
	assert.Equal(t, "bob", item.ProcessedBy)

	rec = env.do(t, http.MethodGet, "/api/v1/parts/"+item.NamePartID+"/history", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []namePartItem
	decodeResult(t, rec, &history)
	assert.Len(t, history, 1)
}

func TestPartErrorsOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// a mnemonic must be alphanumeric
	rec := env.do(t, http.MethodPost, "/api/v1/parts", "alice", "", map[string]any{
		"part_type": "SECTION",
		"name":      "Accelerator",
		"mnemonic":  "Acc-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// cancel with nothing pending
	id := env.approvedPart(t, domain.NamePartTypeSection, "", "Accelerator", "Acc")
	rec = env.do(t, http.MethodPost, "/api/v1/parts/"+id+"/cancel", "alice", "", map[string]any{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// unknown part
	rec = env.do(t, http.MethodDelete, "/api/v1/parts/no-such-id", "alice", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// reject requires editor
	recAdd := env.do(t, http.MethodPost, "/api/v1/parts", "alice", "", map[string]any{
		"part_type": "SECTION",
		"name":      "Targets",
		"mnemonic":  "Tgt",
	})
	require.Equal(t, http.StatusOK, recAdd.Code)
	var pending namePartItem
	decodeResult(t, recAdd, &pending)
	rec = env.do(t, http.MethodPost, "/api/v1/parts/"+pending.NamePartID+"/cancel", "mallory", "", map[string]any{"reject": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTreeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.approvedSectionChain(t, [3]string{"Accelerator", "Linac", "LEBT"}, [3]string{"Acc", "Lin", "LEBT"})

	rec := env.do(t, http.MethodGet, "/api/v1/parts/tree?type=SECTION", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nodes []service.TreeNode
	decodeResult(t, rec, &nodes)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Accelerator", nodes[0].Name)
	require.Len(t, nodes[0].Children, 1)
	require.Len(t, nodes[0].Children[0].Children, 1)
	assert.Equal(t, "LEBT", nodes[0].Children[0].Children[0].Name)
}

func TestDeviceLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	sectionID := env.approvedSectionChain(t, [3]string{"Accelerator", "Linac", "LEBT"}, [3]string{"Acc", "LEBT", "CS"})
	deviceTypeID := env.approvedDeviceTypeChain(t, [3]string{"Diagnostics", "Quads", "Horizontal"}, [3]string{"Dis", "Cat", "QH"})

	rec := env.do(t, http.MethodPost, "/api/v1/devices", "alice", "", map[string]any{
		"section_id":     sectionID,
		"device_type_id": deviceTypeID,
		"instance_index": "1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var dev deviceItem
	decodeResult(t, rec, &dev)
	assert.Equal(t, "LEBT-CS:Dis-QH-1", dev.ConventionName)

	// equivalence-class duplicate is a precondition failure
	rec = env.do(t, http.MethodPost, "/api/v1/devices", "alice", "", map[string]any{
		"section_id":     sectionID,
		"device_type_id": deviceTypeID,
		"instance_index": "01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/devices/"+dev.DeviceID, "alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResult(t, rec, &dev)
	assert.True(t, dev.Deleted)

	rec = env.do(t, http.MethodGet, "/api/v1/devices", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []deviceItem `json:"items"`
		Total int          `json:"total"`
	}
	decodeResult(t, rec, &list)
	assert.Equal(t, 0, list.Total)
}

func TestDeviceExcelRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	sectionID := env.approvedSectionChain(t, [3]string{"Accelerator", "Linac", "LEBT"}, [3]string{"Acc", "LEBT", "CS"})
	deviceTypeID := env.approvedDeviceTypeChain(t, [3]string{"Diagnostics", "Quads", "Horizontal"}, [3]string{"Dis", "Cat", "QH"})

	workbook, err := generateDeviceExcel(DeviceImportHeader, [][]any{
		{sectionID, deviceTypeID, "1", "left of the chopper"},
		{sectionID, deviceTypeID, "2", ""},
	})
	require.NoError(t, err)

	defs, err := ParseDeviceImport(workbook)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, sectionID, defs[0].SectionID)
	assert.Equal(t, "left of the chopper", defs[0].AdditionalInfo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/import", bytes.NewReader(workbook))
	req.Header.Set("X-User", "alice")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var imported struct {
		Imported int `json:"imported"`
	}
	decodeResult(t, rec, &imported)
	assert.Equal(t, 2, imported.Imported)

	// export now carries both convention names
	rec = env.do(t, http.MethodGet, "/api/v1/devices/export", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	// bad header is rejected
	badSheet, err := generateDeviceExcel([]string{"Wrong"}, nil)
	require.NoError(t, err)
	_, err = ParseDeviceImport(badSheet)
	assert.Error(t, err)
}

func TestImportTemplateDownload(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/devices/template", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())

	defs, err := ParseDeviceImport(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Empty(t, defs)
}
