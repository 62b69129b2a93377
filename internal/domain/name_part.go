package domain

import "time"

// NamePartType 层级类型：区域层级（SECTION）或设备分类层级（DEVICE_TYPE）
type NamePartType string

const (
	NamePartTypeSection    NamePartType = "SECTION"
	NamePartTypeDeviceType NamePartType = "DEVICE_TYPE"
)

// Valid reports whether t is one of the two known hierarchies.
func (t NamePartType) Valid() bool {
	return t == NamePartTypeSection || t == NamePartTypeDeviceType
}

// RevisionStatus 修订审批状态
type RevisionStatus string

const (
	StatusPending   RevisionStatus = "PENDING"
	StatusApproved  RevisionStatus = "APPROVED"
	StatusCancelled RevisionStatus = "CANCELLED"
	StatusRejected  RevisionStatus = "REJECTED"
)

// NamePart 命名节点身份（对应 name_parts 表）
// Identity only; all content lives on its revisions. Never mutated after creation.
type NamePart struct {
	NamePartID string       `db:"name_part_id"` // UUID, PRIMARY KEY
	PartType   NamePartType `db:"part_type"`    // SECTION / DEVICE_TYPE, fixed at creation
}

// NamePartRevision 命名节点修订（对应 name_part_revisions 表，append-only）
// Rows are never updated except for the three processing fields, set exactly
// once when Status leaves PENDING.
type NamePartRevision struct {
	SequenceID int64        `db:"sequence_id"` // BIGSERIAL, ordering key per NamePart
	NamePartID string       `db:"name_part_id"`
	PartType   NamePartType `db:"part_type"` // denormalized from name_parts on read

	RequestedBy      string    `db:"requested_by"` // empty = system-initiated
	RequestDate      time.Time `db:"request_date"`
	RequesterComment string    `db:"requester_comment"`

	Deleted     bool   `db:"deleted"`
	ParentID    string `db:"parent_id"` // empty only at hierarchy root
	Name        string `db:"name"`      // free-text label
	Mnemonic    string `db:"mnemonic"`  // short code used in convention names; may be empty at root level
	Description string `db:"description"`

	// Computed on write so historical rows stay stable even if the
	// normalization algorithm changes later.
	MnemonicEqClass string `db:"mnemonic_eq_class"`

	Status           RevisionStatus `db:"status"`
	ProcessedBy      string         `db:"processed_by"`
	ProcessDate      *time.Time     `db:"process_date"`
	ProcessorComment string         `db:"processor_comment"`
}

// Pending reports whether the revision is still awaiting a decision.
func (r *NamePartRevision) Pending() bool { return r.Status == StatusPending }

// Approved reports whether the revision has been accepted.
func (r *NamePartRevision) Approved() bool { return r.Status == StatusApproved }
