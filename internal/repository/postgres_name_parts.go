package repository

import (
	"context"
	"database/sql"
	"fmt"

	"naming-registry/internal/domain"
)

const namePartRevisionColumns = `
	r.sequence_id,
	r.name_part_id::text,
	p.part_type,
	r.requested_by,
	r.request_date,
	r.requester_comment,
	r.deleted,
	r.parent_id::text,
	r.name,
	r.mnemonic,
	r.description,
	r.mnemonic_eq_class,
	r.status,
	r.processed_by,
	r.process_date,
	r.processor_comment`

// ListNamePartRevisions 全量修订，按序列号升序
func (s *PostgresStore) ListNamePartRevisions(ctx context.Context) ([]domain.NamePartRevision, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM name_part_revisions r
		JOIN name_parts p ON p.name_part_id = r.name_part_id
		ORDER BY r.sequence_id
	`, namePartRevisionColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list name part revisions: %w", err)
	}
	defer rows.Close()

	return scanNamePartRevisions(rows)
}

// ListRevisionsForNamePart 单个节点的修订历史，按序列号升序
func (s *PostgresStore) ListRevisionsForNamePart(ctx context.Context, namePartID string) ([]domain.NamePartRevision, error) {
	if namePartID == "" {
		return nil, domain.ErrNotFound
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM name_part_revisions r
		JOIN name_parts p ON p.name_part_id = r.name_part_id
		WHERE r.name_part_id = $1
		ORDER BY r.sequence_id
	`, namePartRevisionColumns)

	rows, err := s.db.QueryContext(ctx, query, namePartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions for name part: %w", err)
	}
	defer rows.Close()

	return scanNamePartRevisions(rows)
}

// GetNamePartRevision 按序列号取单条修订
func (s *PostgresStore) GetNamePartRevision(ctx context.Context, sequenceID int64) (*domain.NamePartRevision, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM name_part_revisions r
		JOIN name_parts p ON p.name_part_id = r.name_part_id
		WHERE r.sequence_id = $1
	`, namePartRevisionColumns)

	rev, err := scanNamePartRevision(s.db.QueryRowContext(ctx, query, sequenceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get name part revision: %w", err)
	}
	return rev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNamePartRevision(row rowScanner) (*domain.NamePartRevision, error) {
	var rev domain.NamePartRevision
	var requestedBy, requesterComment, parentID sql.NullString
	var mnemonic, description, eqClass sql.NullString
	var processedBy, processorComment sql.NullString
	var processDate sql.NullTime

	err := row.Scan(
		&rev.SequenceID,
		&rev.NamePartID,
		&rev.PartType,
		&requestedBy,
		&rev.RequestDate,
		&requesterComment,
		&rev.Deleted,
		&parentID,
		&rev.Name,
		&mnemonic,
		&description,
		&eqClass,
		&rev.Status,
		&processedBy,
		&processDate,
		&processorComment,
	)
	if err != nil {
		return nil, err
	}

	rev.RequestedBy = requestedBy.String
	rev.RequesterComment = requesterComment.String
	rev.ParentID = parentID.String
	rev.Mnemonic = mnemonic.String
	rev.Description = description.String
	rev.MnemonicEqClass = eqClass.String
	rev.ProcessedBy = processedBy.String
	rev.ProcessorComment = processorComment.String
	if processDate.Valid {
		t := processDate.Time
		rev.ProcessDate = &t
	}
	return &rev, nil
}

func scanNamePartRevisions(rows *sql.Rows) ([]domain.NamePartRevision, error) {
	var revisions []domain.NamePartRevision
	for rows.Next() {
		rev, err := scanNamePartRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan name part revision: %w", err)
		}
		revisions = append(revisions, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate name part revisions: %w", err)
	}
	return revisions, nil
}
