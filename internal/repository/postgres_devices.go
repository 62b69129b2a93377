package repository

import (
	"context"
	"database/sql"
	"fmt"

	"naming-registry/internal/domain"
)

const deviceRevisionColumns = `
	r.sequence_id,
	r.device_id::text,
	r.requested_by,
	r.request_date,
	r.deleted,
	r.section_id::text,
	r.device_type_id::text,
	r.instance_index,
	r.additional_info,
	r.convention_name,
	r.convention_name_eq_class`

// ListDeviceRevisions 全量设备修订，按序列号升序
func (s *PostgresStore) ListDeviceRevisions(ctx context.Context) ([]domain.DeviceRevision, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM device_revisions r
		ORDER BY r.sequence_id
	`, deviceRevisionColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list device revisions: %w", err)
	}
	defer rows.Close()

	return scanDeviceRevisions(rows)
}

// ListRevisionsForDevice 单个设备的修订历史，按序列号升序
func (s *PostgresStore) ListRevisionsForDevice(ctx context.Context, deviceID string) ([]domain.DeviceRevision, error) {
	if deviceID == "" {
		return nil, domain.ErrNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM device_revisions r
		WHERE r.device_id = $1
		ORDER BY r.sequence_id
	`, deviceRevisionColumns)

	rows, err := s.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions for device: %w", err)
	}
	defer rows.Close()

	return scanDeviceRevisions(rows)
}

// GetDeviceRevision 按序列号取单条修订
func (s *PostgresStore) GetDeviceRevision(ctx context.Context, sequenceID int64) (*domain.DeviceRevision, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM device_revisions r
		WHERE r.sequence_id = $1
	`, deviceRevisionColumns)

	rev, err := scanDeviceRevision(s.db.QueryRowContext(ctx, query, sequenceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device revision: %w", err)
	}
	return rev, nil
}

// ListCurrentDeviceRevisions 每个设备的最新修订
func (s *PostgresStore) ListCurrentDeviceRevisions(ctx context.Context, includeDeleted bool) ([]domain.DeviceRevision, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM device_revisions r
		JOIN (
			SELECT device_id, MAX(sequence_id) AS sequence_id
			FROM device_revisions
			GROUP BY device_id
		) latest ON latest.sequence_id = r.sequence_id
	`, deviceRevisionColumns)
	if !includeDeleted {
		query += `
		WHERE NOT r.deleted`
	}
	query += `
		ORDER BY r.sequence_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list current device revisions: %w", err)
	}
	defer rows.Close()

	return scanDeviceRevisions(rows)
}

func scanDeviceRevision(row rowScanner) (*domain.DeviceRevision, error) {
	var rev domain.DeviceRevision
	var requestedBy, instanceIndex, additionalInfo sql.NullString

	err := row.Scan(
		&rev.SequenceID,
		&rev.DeviceID,
		&requestedBy,
		&rev.RequestDate,
		&rev.Deleted,
		&rev.SectionID,
		&rev.DeviceTypeID,
		&instanceIndex,
		&additionalInfo,
		&rev.ConventionName,
		&rev.ConventionNameEqClass,
	)
	if err != nil {
		return nil, err
	}

	rev.RequestedBy = requestedBy.String
	rev.InstanceIndex = instanceIndex.String
	rev.AdditionalInfo = additionalInfo.String
	return &rev, nil
}

func scanDeviceRevisions(rows *sql.Rows) ([]domain.DeviceRevision, error) {
	var revisions []domain.DeviceRevision
	for rows.Next() {
		rev, err := scanDeviceRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device revision: %w", err)
		}
		revisions = append(revisions, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device revisions: %w", err)
	}
	return revisions, nil
}
