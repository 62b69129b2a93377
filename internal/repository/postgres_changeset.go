package repository

import (
	"context"
	"fmt"

	"naming-registry/internal/domain"
)

// ApplyChangeSet 单事务提交变更集
// Order matters: identities first, then status updates, then new revisions,
// so a cancel-then-repropose in one change set never trips the single-pending
// index.
func (s *PostgresStore) ApplyChangeSet(ctx context.Context, cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, part := range cs.NewNameParts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO name_parts (name_part_id, part_type) VALUES ($1, $2)`,
			part.NamePartID, part.PartType,
		)
		if err != nil {
			return fmt.Errorf("failed to insert name part: %w", err)
		}
	}

	for _, dev := range cs.NewDevices {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO devices (device_id) VALUES ($1)`,
			dev.DeviceID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert device: %w", err)
		}
	}

	for _, upd := range cs.StatusUpdates {
		res, err := tx.ExecContext(ctx, `
			UPDATE name_part_revisions
			SET status = $1, processed_by = $2, process_date = $3, processor_comment = $4
			WHERE sequence_id = $5 AND status = 'PENDING'
		`, upd.Status, nullIfEmpty(upd.ProcessedBy), upd.ProcessDate, nullIfEmpty(upd.ProcessorComment), upd.SequenceID)
		if err != nil {
			return fmt.Errorf("failed to update revision status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read status update result: %w", err)
		}
		if affected == 0 {
			// the revision was processed concurrently
			return fmt.Errorf("revision %d: %w", upd.SequenceID, domain.ErrNotFound)
		}
	}

	for _, rev := range cs.NewNamePartRevisions {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO name_part_revisions (
				name_part_id, requested_by, request_date, requester_comment,
				deleted, parent_id, name, mnemonic, description,
				mnemonic_eq_class, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING sequence_id
		`,
			rev.NamePartID, nullIfEmpty(rev.RequestedBy), rev.RequestDate, nullIfEmpty(rev.RequesterComment),
			rev.Deleted, nullIfEmpty(rev.ParentID), rev.Name, nullIfEmpty(rev.Mnemonic), nullIfEmpty(rev.Description),
			nullIfEmpty(rev.MnemonicEqClass), rev.Status,
		).Scan(&rev.SequenceID)
		if err != nil {
			if isSinglePendingViolation(err) {
				return fmt.Errorf("name part %s: %w", rev.NamePartID, domain.ErrPendingExists)
			}
			return fmt.Errorf("failed to insert name part revision: %w", err)
		}
	}

	for _, rev := range cs.NewDeviceRevisions {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO device_revisions (
				device_id, requested_by, request_date, deleted,
				section_id, device_type_id, instance_index, additional_info,
				convention_name, convention_name_eq_class
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING sequence_id
		`,
			rev.DeviceID, nullIfEmpty(rev.RequestedBy), rev.RequestDate, rev.Deleted,
			rev.SectionID, rev.DeviceTypeID, nullIfEmpty(rev.InstanceIndex), nullIfEmpty(rev.AdditionalInfo),
			rev.ConventionName, rev.ConventionNameEqClass,
		).Scan(&rev.SequenceID)
		if err != nil {
			return fmt.Errorf("failed to insert device revision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit change set: %w", err)
	}
	return nil
}
