package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"naming-registry/internal/domain"
	"naming-registry/internal/service"

	"github.com/xuri/excelize/v2"
)

const deviceSheetName = "Devices"

// DeviceImportHeader 导入模板表头（只包含定义字段）
var DeviceImportHeader = []string{
	"Section ID",
	"Device Type ID",
	"Instance Index",
	"Additional Info",
}

// DeviceExportHeader 导出表头（包含生成的命名）
var DeviceExportHeader = []string{
	"Convention Name",
	"Section ID",
	"Device Type ID",
	"Instance Index",
	"Additional Info",
	"Device ID",
}

// GenerateDeviceImportTemplate 生成导入模板 Excel 文件（只包含表头）
func GenerateDeviceImportTemplate() ([]byte, error) {
	return generateDeviceExcel(DeviceImportHeader, nil)
}

// GenerateDeviceExport 生成设备导出 Excel 文件
func GenerateDeviceExport(revs []domain.DeviceRevision) ([]byte, error) {
	rows := make([][]any, 0, len(revs))
	for i := range revs {
		rev := &revs[i]
		rows = append(rows, []any{
			rev.ConventionName,
			rev.SectionID,
			rev.DeviceTypeID,
			rev.InstanceIndex,
			rev.AdditionalInfo,
			rev.DeviceID,
		})
	}
	return generateDeviceExcel(DeviceExportHeader, rows)
}

// generateDeviceExcel 生成设备 Excel 文件的通用函数
// headers: 表头列表
// rows: 数据行，为空则只生成表头
func generateDeviceExcel(headers []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	index, err := f.NewSheet(deviceSheetName)
	if err != nil {
		f.Close() // Close on error
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 设置表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(deviceSheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(deviceSheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 设置列宽
	for i := 0; i < len(headers); i++ {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(deviceSheetName, col, col, 24); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 写入数据
	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(deviceSheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(deviceSheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseDeviceImport 解析上传的设备 Excel 文件
// 表头顺序按 DeviceImportHeader，空行跳过。
func ParseDeviceImport(fileBytes []byte) ([]service.DeviceDefinition, error) {
	f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("Excel file has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Excel file is empty")
	}

	// 校验表头
	header := rows[0]
	for i, want := range DeviceImportHeader {
		if i >= len(header) || !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, fmt.Errorf("unexpected header in column %d: want %q", i+1, want)
		}
	}

	defs := make([]service.DeviceDefinition, 0, len(rows)-1)
	for _, row := range rows[1:] {
		def := service.DeviceDefinition{
			SectionID:      cellAt(row, 0),
			DeviceTypeID:   cellAt(row, 1),
			InstanceIndex:  cellAt(row, 2),
			AdditionalInfo: cellAt(row, 3),
		}
		if def.SectionID == "" && def.DeviceTypeID == "" && def.InstanceIndex == "" && def.AdditionalInfo == "" {
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// cellAt 获取行内指定列的值（越界返回空串）
func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
