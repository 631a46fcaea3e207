package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// DEFINITION STORE (obligation.DefinitionStore interface)
// =============================================================================

const definitionColumns = `id, kind_id, party_id, party_name, category, amount, incentive, reward,
	frequency, anchor_day, start_date, end_date, join_date, status, auto_pay, created_at, updated_at`

// SaveDefinition inserts or updates a definition. Updating in place keeps
// entries' foreign keys valid.
func (s *Store) SaveDefinition(ctx context.Context, def obligation.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO definitions (` + definitionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind_id = excluded.kind_id,
			party_id = excluded.party_id,
			party_name = excluded.party_name,
			category = excluded.category,
			amount = excluded.amount,
			incentive = excluded.incentive,
			reward = excluded.reward,
			frequency = excluded.frequency,
			anchor_day = excluded.anchor_day,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			join_date = excluded.join_date,
			status = excluded.status,
			auto_pay = excluded.auto_pay,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		def.ID,
		def.KindID(),
		def.PartyID,
		def.PartyName,
		def.Category,
		def.Amount.String(),
		def.Incentive.String(),
		def.Reward.String(),
		def.Frequency,
		def.AnchorDay,
		formatDate(def.StartDate),
		nullDate(def.EndDate),
		nullDate(def.JoinDate),
		def.Status,
		def.AutoPay,
		formatTime(def.CreatedAt),
		formatTime(def.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save definition: %w", err)
	}
	return nil
}

// GetDefinition retrieves a definition by ID.
func (s *Store) GetDefinition(ctx context.Context, id obligation.DefinitionID) (*obligation.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+definitionColumns+" FROM definitions WHERE id = ?", id)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, obligation.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// ListDefinitions returns definitions matching filter.
func (s *Store) ListDefinitions(ctx context.Context, filter obligation.DefinitionFilter) ([]obligation.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.KindID != "" {
		where = append(where, "kind_id = ?")
		args = append(args, filter.KindID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.PartyID != "" {
		where = append(where, "party_id = ?")
		args = append(args, filter.PartyID)
	}
	if filter.AutoPayOnly {
		where = append(where, "auto_pay = 1")
	}

	query := "SELECT " + definitionColumns + " FROM definitions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY party_name ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	var defs []obligation.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteDefinition removes a definition that no entry references.
func (s *Store) DeleteDefinition(ctx context.Context, id obligation.DefinitionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE definition_id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if count > 0 {
		return obligation.ErrDefinitionInUse
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM definitions WHERE id = ?", id)
	if isForeignKeyError(err) {
		return obligation.ErrDefinitionInUse
	}
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return obligation.ErrDefinitionNotFound
	}
	return tx.Commit()
}

func scanDefinition(row scanner) (obligation.Definition, error) {
	var (
		def                       obligation.Definition
		kindID                    string
		amount, incentive, reward string
		startDate                 string
		endDate, joinDate         sql.NullString
		createdAt, updatedAt      string
	)
	err := row.Scan(
		&def.ID, &kindID, &def.PartyID, &def.PartyName, &def.Category,
		&amount, &incentive, &reward,
		&def.Frequency, &def.AnchorDay, &startDate, &endDate, &joinDate,
		&def.Status, &def.AutoPay, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, err
		}
		return def, fmt.Errorf("failed to scan definition: %w", err)
	}

	def.Kind = obligation.KindOrUnregistered(kindID)
	if def.Amount, err = parseDecimal(amount); err != nil {
		return def, err
	}
	if def.Incentive, err = parseDecimal(incentive); err != nil {
		return def, err
	}
	if def.Reward, err = parseDecimal(reward); err != nil {
		return def, err
	}
	if def.StartDate, err = parseDate(startDate); err != nil {
		return def, err
	}
	if def.EndDate, err = parseOptional(endDate, parseDate); err != nil {
		return def, err
	}
	if def.JoinDate, err = parseOptional(joinDate, parseDate); err != nil {
		return def, err
	}
	if def.CreatedAt, err = parseTime(createdAt); err != nil {
		return def, err
	}
	if def.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return def, err
	}
	return def, nil
}
