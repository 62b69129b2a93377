package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"naming-registry/internal/domain"
	"naming-registry/internal/service"

	"go.uber.org/zap"
)

// DeviceHandler 设备 Handler
type DeviceHandler struct {
	devices *service.DeviceService
	tree    *service.TreeService
	logger  *zap.Logger
}

// NewDeviceHandler 创建设备 Handler
func NewDeviceHandler(devices *service.DeviceService, tree *service.TreeService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		tree:    tree,
		logger:  logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/devices")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "" && r.Method == http.MethodGet:
		h.ListDevices(w, r)
	case path == "" && r.Method == http.MethodPost:
		h.AddDevice(w, r)
	case path == "import" && r.Method == http.MethodPost:
		h.ImportDevices(w, r)
	case path == "export" && r.Method == http.MethodGet:
		h.ExportDevices(w, r)
	case path == "template" && r.Method == http.MethodGet:
		h.ImportTemplate(w, r)
	case strings.HasSuffix(path, "/history") && r.Method == http.MethodGet:
		h.History(w, r, strings.TrimSuffix(path, "/history"))
	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodGet:
		h.GetDevice(w, r, path)
	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodPut:
		h.ModifyDevice(w, r, path)
	case path != "" && !strings.Contains(path, "/") && r.Method == http.MethodDelete:
		h.DeleteDevice(w, r, path)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// deviceItem 前端格式
type deviceItem struct {
	DeviceID       string `json:"device_id"`
	SequenceID     int64  `json:"sequence_id"`
	SectionID      string `json:"section_id"`
	DeviceTypeID   string `json:"device_type_id"`
	InstanceIndex  string `json:"instance_index,omitempty"`
	ConventionName string `json:"convention_name"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	Deleted        bool   `json:"deleted"`
	RequestedBy    string `json:"requested_by,omitempty"`
}

func toDeviceItem(rev *domain.DeviceRevision) deviceItem {
	return deviceItem{
		DeviceID:       rev.DeviceID,
		SequenceID:     rev.SequenceID,
		SectionID:      rev.SectionID,
		DeviceTypeID:   rev.DeviceTypeID,
		InstanceIndex:  rev.InstanceIndex,
		ConventionName: rev.ConventionName,
		AdditionalInfo: rev.AdditionalInfo,
		Deleted:        rev.Deleted,
		RequestedBy:    rev.RequestedBy,
	}
}

// ListDevices 设备列表（当前修订）
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	revs, err := h.devices.ListDevices(r.Context(), includeDeleted)
	if err != nil {
		writeServiceError(w, h.logger, "ListDevices", err)
		return
	}
	items := make([]deviceItem, 0, len(revs))
	for i := range revs {
		items = append(items, toDeviceItem(&revs[i]))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "total": len(items)}))
}

// GetDevice 设备详情
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	rev, err := h.devices.GetDevice(r.Context(), deviceID)
	if err != nil {
		writeServiceError(w, h.logger, "GetDevice", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toDeviceItem(rev)))
}

// History 设备修订历史
func (h *DeviceHandler) History(w http.ResponseWriter, r *http.Request, deviceID string) {
	revs, err := h.devices.DeviceHistory(r.Context(), deviceID)
	if err != nil {
		writeServiceError(w, h.logger, "History", err)
		return
	}
	items := make([]deviceItem, 0, len(revs))
	for i := range revs {
		items = append(items, toDeviceItem(&revs[i]))
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

type devicePayload struct {
	SectionID      string `json:"section_id"`
	DeviceTypeID   string `json:"device_type_id"`
	InstanceIndex  string `json:"instance_index"`
	AdditionalInfo string `json:"additional_info"`
}

// AddDevice 新增设备
func (h *DeviceHandler) AddDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicePayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	c := callerFromReq(r)
	rev, err := h.devices.AddDevice(r.Context(), service.AddDeviceRequest{
		DeviceDefinition: service.DeviceDefinition{
			SectionID:      payload.SectionID,
			DeviceTypeID:   payload.DeviceTypeID,
			InstanceIndex:  payload.InstanceIndex,
			AdditionalInfo: payload.AdditionalInfo,
		},
		RequestedBy: c.User,
	})
	if err != nil {
		writeServiceError(w, h.logger, "AddDevice", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toDeviceItem(rev)))
}

// ModifyDevice 修改设备
func (h *DeviceHandler) ModifyDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	var payload devicePayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	c := callerFromReq(r)
	rev, err := h.devices.ModifyDevice(r.Context(), service.ModifyDeviceRequest{
		DeviceID: deviceID,
		DeviceDefinition: service.DeviceDefinition{
			SectionID:      payload.SectionID,
			DeviceTypeID:   payload.DeviceTypeID,
			InstanceIndex:  payload.InstanceIndex,
			AdditionalInfo: payload.AdditionalInfo,
		},
		RequestedBy: c.User,
	})
	if err != nil {
		writeServiceError(w, h.logger, "ModifyDevice", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toDeviceItem(rev)))
}

// DeleteDevice 删除设备
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	c := callerFromReq(r)
	rev, err := h.devices.DeleteDevice(r.Context(), service.DeleteDeviceRequest{
		DeviceID:    deviceID,
		RequestedBy: c.User,
	})
	if err != nil {
		writeServiceError(w, h.logger, "DeleteDevice", err)
		return
	}
	h.tree.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, Ok(toDeviceItem(rev)))
}

// ImportDevices 批量导入（Excel 上传，全有或全无）
func (h *DeviceHandler) ImportDevices(w http.ResponseWriter, r *http.Request) {
	fileBytes, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil || len(fileBytes) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("empty upload"))
		return
	}
	defs, err := ParseDeviceImport(fileBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	c := callerFromReq(r)
	revs, err := h.devices.BatchAddDevices(r.Context(), defs, c.User)
	if err != nil {
		writeServiceError(w, h.logger, "ImportDevices", err)
		return
	}
	h.tree.Invalidate(r.Context())

	items := make([]deviceItem, 0, len(revs))
	for _, rev := range revs {
		items = append(items, toDeviceItem(rev))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": items, "imported": len(items)}))
}

// ExportDevices 导出当前设备清单
func (h *DeviceHandler) ExportDevices(w http.ResponseWriter, r *http.Request) {
	revs, err := h.devices.ListDevices(r.Context(), false)
	if err != nil {
		writeServiceError(w, h.logger, "ExportDevices", err)
		return
	}
	data, err := GenerateDeviceExport(revs)
	if err != nil {
		writeServiceError(w, h.logger, "ExportDevices", err)
		return
	}
	writeWorkbook(w, fmt.Sprintf("devices-%s.xlsx", time.Now().UTC().Format("20060102")), data)
}

// ImportTemplate 导入模板下载
func (h *DeviceHandler) ImportTemplate(w http.ResponseWriter, _ *http.Request) {
	data, err := GenerateDeviceImportTemplate()
	if err != nil {
		writeServiceError(w, h.logger, "ImportTemplate", err)
		return
	}
	writeWorkbook(w, "devices-template.xlsx", data)
}

func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
