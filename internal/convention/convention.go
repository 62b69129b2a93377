package convention

import "naming-registry/internal/domain"

// NamingConvention 命名规范策略接口
// Pure functions, no persistence. Selected at deployment time and injected
// into the services so alternative site conventions can be swapped in.
//
// Mnemonic paths are positional: element i is the mnemonic at depth i, from
// the hierarchy root down to the node itself. Root-level mnemonics may be
// empty strings; the position still counts.
type NamingConvention interface {
	// IsNameValid 校验候选助记符在给定层级下是否合法
	// parentPath is the mnemonic path of the prospective parent (empty at root).
	IsNameValid(partType domain.NamePartType, parentPath []string, candidate string) bool

	// IsMnemonicRequired 该层级是否必须提供助记符
	IsMnemonicRequired(partType domain.NamePartType, parentPath []string) bool

	// EquivalenceClassRepresentative 归一化名称用于唯一性比较
	// Two names are the same for uniqueness purposes iff their
	// representatives are equal.
	EquivalenceClassRepresentative(name string) string

	// CanMnemonicsCoexist 两个同等价类助记符是否允许共存
	CanMnemonicsCoexist(pathA []string, typeA domain.NamePartType, pathB []string, typeB domain.NamePartType) bool

	// ConventionName 组合设备规范名
	// Returns "" when either path is too shallow to form a device name.
	ConventionName(sectionPath, deviceTypePath []string, instanceIndex string) string

	// IsInstanceIndexValid 校验实例序号
	IsInstanceIndexValid(instanceIndex string) bool

	// AreaName 区域名（section-subsection），路径不足时返回 ""
	AreaName(sectionPath []string) string

	// DeviceDefinition 设备定义名（discipline-deviceType），路径不足时返回 ""
	DeviceDefinition(deviceTypePath []string) string
}
