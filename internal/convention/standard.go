package convention

import (
	"fmt"

	"naming-registry/internal/domain"
)

// StandardConvention 默认命名规范实现
// Hierarchies have three meaningful levels: super-section/section/subsection
// for SECTION, discipline/category/device-type for DEVICE_TYPE.
type StandardConvention struct{}

// NewStandardConvention 创建默认命名规范
func NewStandardConvention() *StandardConvention { return &StandardConvention{} }

// 确保实现了接口
var _ NamingConvention = (*StandardConvention)(nil)

// nameLengthBounds returns the allowed mnemonic length at the depth implied
// by the parent path. Root level mnemonics are optional (min 0).
func nameLengthBounds(parentPath []string) (min, max int) {
	if len(parentPath) == 0 {
		return 0, 16
	}
	return 1, 6
}

// IsNameValid 校验候选助记符是否合法
func (c *StandardConvention) IsNameValid(partType domain.NamePartType, parentPath []string, candidate string) bool {
	mustBeHierarchy(partType)
	min, max := nameLengthBounds(parentPath)
	if len(candidate) < min || len(candidate) > max {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if !isAlnum(candidate[i]) {
			return false
		}
	}
	return true
}

// IsMnemonicRequired 根层级助记符可为空，更深层级必填
func (c *StandardConvention) IsMnemonicRequired(partType domain.NamePartType, parentPath []string) bool {
	mustBeHierarchy(partType)
	min, _ := nameLengthBounds(parentPath)
	return min > 0
}

// EquivalenceClassRepresentative 归一化名称
// Uppercase; drop zero runs that pad a numeric run (after a letter, or at the
// start of a digit run); map the confusable characters I,L->1 O->0 W->V.
func (c *StandardConvention) EquivalenceClassRepresentative(name string) string {
	up := toUpperASCII(name)

	// zeros between a letter and a digit are numeric padding
	stripped := make([]byte, 0, len(up))
	for i := 0; i < len(up); i++ {
		ch := up[i]
		if ch == '0' && len(stripped) > 0 && isLetter(stripped[len(stripped)-1]) {
			j := i
			for j < len(up) && up[j] == '0' {
				j++
			}
			if j < len(up) && isDigit(up[j]) {
				i = j - 1
				continue
			}
		}
		stripped = append(stripped, ch)
	}

	for i, ch := range stripped {
		switch ch {
		case 'I', 'L':
			stripped[i] = '1'
		case 'O':
			stripped[i] = '0'
		case 'W':
			stripped[i] = 'V'
		}
	}

	// leading zeros of a digit run (not preceded by another digit)
	out := make([]byte, 0, len(stripped))
	for i := 0; i < len(stripped); i++ {
		ch := stripped[i]
		if ch == '0' && (len(out) == 0 || !isDigit(out[len(out)-1])) {
			j := i
			for j < len(stripped) && stripped[j] == '0' {
				j++
			}
			if j < len(stripped) && isDigit(stripped[j]) {
				i = j - 1
				continue
			}
		}
		out = append(out, ch)
	}

	return string(out)
}

// CanMnemonicsCoexist 共存规则
// Level 1 and 2 nodes of either hierarchy are globally exclusive. Third-level
// device types must be unique within the same discipline (path[0]),
// third-level subsections within the same section (path[1]). Everything else
// may share an equivalence class.
func (c *StandardConvention) CanMnemonicsCoexist(pathA []string, typeA domain.NamePartType, pathB []string, typeB domain.NamePartType) bool {
	mustBeHierarchy(typeA)
	mustBeHierarchy(typeB)
	if len(pathA) == 0 || len(pathB) == 0 {
		panic("convention: empty mnemonic path")
	}
	if len(pathA) <= 2 || len(pathB) <= 2 {
		return false
	}
	if typeA != typeB {
		return true
	}
	if typeA == domain.NamePartTypeDeviceType {
		return pathA[0] != pathB[0]
	}
	return pathA[1] != pathB[1]
}

// ConventionName 组合 section-subsection:discipline-deviceType[-instanceIndex]
func (c *StandardConvention) ConventionName(sectionPath, deviceTypePath []string, instanceIndex string) string {
	area := c.AreaName(sectionPath)
	def := c.DeviceDefinition(deviceTypePath)
	if area == "" || def == "" {
		return ""
	}
	name := area + ":" + def
	if instanceIndex != "" {
		name += "-" + instanceIndex
	}
	return name
}

// IsInstanceIndexValid 实例序号：可为空，长度不超过6，仅字母数字
func (c *StandardConvention) IsInstanceIndexValid(instanceIndex string) bool {
	if len(instanceIndex) > 6 {
		return false
	}
	for i := 0; i < len(instanceIndex); i++ {
		if !isAlnum(instanceIndex[i]) {
			return false
		}
	}
	return true
}

// AreaName 区域名 section-subsection
func (c *StandardConvention) AreaName(sectionPath []string) string {
	if len(sectionPath) < 3 {
		return ""
	}
	return sectionPath[1] + "-" + sectionPath[2]
}

// DeviceDefinition 设备定义名 discipline-deviceType
func (c *StandardConvention) DeviceDefinition(deviceTypePath []string) string {
	if len(deviceTypePath) < 3 {
		return ""
	}
	return deviceTypePath[0] + "-" + deviceTypePath[2]
}

// mustBeHierarchy panics on an unknown part type: a malformed call is a
// programming error, not a recoverable condition.
func mustBeHierarchy(t domain.NamePartType) {
	if !t.Valid() {
		panic(fmt.Sprintf("convention: unknown name part type %q", t))
	}
}

func isLetter(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isAlnum(ch byte) bool { return isLetter(ch) || isDigit(ch) }

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - ('a' - 'A')
		}
	}
	return string(b)
}
