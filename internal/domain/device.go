package domain

import "time"

// Device 设备身份（对应 devices 表）
// Identity only; content lives on its revisions.
type Device struct {
	DeviceID string `db:"device_id"` // UUID, PRIMARY KEY
}

// DeviceRevision 设备修订（对应 device_revisions 表，append-only）
// Devices commit immediately: there is no approval status, the row with the
// highest sequence id is the device's current content.
type DeviceRevision struct {
	SequenceID int64  `db:"sequence_id"` // BIGSERIAL, ordering key per Device
	DeviceID   string `db:"device_id"`

	RequestedBy string    `db:"requested_by"` // empty = system-initiated (e.g. cascade delete)
	RequestDate time.Time `db:"request_date"`

	Deleted        bool   `db:"deleted"`
	SectionID      string `db:"section_id"`     // NamePart of type SECTION
	DeviceTypeID   string `db:"device_type_id"` // NamePart of type DEVICE_TYPE
	InstanceIndex  string `db:"instance_index"` // optional qualifier, may be empty
	AdditionalInfo string `db:"additional_info"`

	// Derived composite name and its normalization, computed on write.
	ConventionName        string `db:"convention_name"`
	ConventionNameEqClass string `db:"convention_name_eq_class"`
}

// SameContent reports whether the revision carries the same effective content
// as other (everything except request metadata and the deleted flag).
func (r *DeviceRevision) SameContent(other *DeviceRevision) bool {
	return r.SectionID == other.SectionID &&
		r.DeviceTypeID == other.DeviceTypeID &&
		r.InstanceIndex == other.InstanceIndex &&
		r.ConventionName == other.ConventionName &&
		r.AdditionalInfo == other.AdditionalInfo
}
