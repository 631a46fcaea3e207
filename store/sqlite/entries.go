package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// ENTRY STORE (obligation.EntryStore interface)
// =============================================================================

const entryColumns = `id, definition_id, kind_id, party_id, party_name, category, period_key, due_date,
	base_amount, base_status, base_paid_at, base_method, base_reference, base_remarks,
	incentive_amount, incentive_status, incentive_paid_at, incentive_method, incentive_reference, incentive_remarks,
	reward_amount, reward_status, reward_paid_at, reward_method, reward_reference, reward_remarks,
	created_at, updated_at`

// channelColumns whitelists the column prefix of each channel.
// Channel names are never interpolated into SQL any other way.
var channelColumns = map[obligation.Channel]string{
	obligation.ChannelBase:      "base",
	obligation.ChannelIncentive: "incentive",
	obligation.ChannelReward:    "reward",
}

const allChannelsPending = "base_status = 'pending' AND incentive_status = 'pending' AND reward_status = 'pending'"

func channelColumn(ch obligation.Channel) (string, error) {
	col, ok := channelColumns[ch]
	if !ok {
		return "", &obligation.ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", ch)}
	}
	return col, nil
}

// InsertEntries writes the batch in one transaction. Rows whose
// (definition_id, period_key) already exists are skipped by the UNIQUE index.
func (s *Store) InsertEntries(ctx context.Context, entries []obligation.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?,
		        ?, ?, ?, ?, ?, ?,
		        ?, ?)
		ON CONFLICT(definition_id, period_key) DO NOTHING
	`

	created := 0
	for _, e := range entries {
		args := []any{
			e.ID, e.DefinitionID, e.KindID, e.PartyID, e.PartyName, e.Category,
			e.Period.Key(), formatDate(e.DueDate),
		}
		for _, rec := range e.Records() {
			args = append(args, channelArgs(rec)...)
		}
		args = append(args, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))

		result, err := tx.ExecContext(ctx, query, args...)
		switch {
		case isForeignKeyError(err):
			return 0, fmt.Errorf("entry %s: %w", e.ID, obligation.ErrDefinitionNotFound)
		case isUniqueConstraintError(err):
			return 0, fmt.Errorf("entry %s: %w", e.ID, obligation.ErrDuplicateEntry)
		case err != nil:
			return 0, fmt.Errorf("failed to insert entry: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entries: %w", err)
	}
	return created, nil
}

func channelArgs(r obligation.ChannelRecord) []any {
	return []any{
		r.Amount.String(),
		string(r.Status),
		nullTime(r.PaidDate),
		r.PaymentMethod,
		r.Reference,
		r.Remarks,
	}
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, id obligation.EntryID) (*obligation.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, obligation.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns entries matching the stored-field part of filter.
func (s *Store) ListEntries(ctx context.Context, filter obligation.EntryFilter) ([]obligation.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if filter.Period != nil {
		add("period_key = ?", filter.Period.Key())
	}
	if filter.From != nil {
		add("period_key >= ?", filter.From.Key())
	}
	if filter.To != nil {
		add("period_key <= ?", filter.To.Key())
	}
	if filter.Category != "" {
		add("category = ?", filter.Category)
	}
	if filter.KindID != "" {
		add("kind_id = ?", filter.KindID)
	}
	if filter.DefinitionID != "" {
		add("definition_id = ?", filter.DefinitionID)
	}
	if filter.PartyID != "" {
		add("party_id = ?", filter.PartyID)
	}

	query := "SELECT " + entryColumns + " FROM entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY period_key ASC, party_name ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []obligation.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestPeriod returns the newest generated period of a definition.
func (s *Store) LatestPeriod(ctx context.Context, id obligation.DefinitionID) (obligation.Period, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var key sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(period_key) FROM entries WHERE definition_id = ?", id,
	).Scan(&key)
	if err != nil {
		return obligation.Period{}, false, fmt.Errorf("failed to query latest period: %w", err)
	}
	if !key.Valid {
		return obligation.Period{}, false, nil
	}
	p, err := obligation.ParsePeriod(key.String)
	if err != nil {
		return obligation.Period{}, false, err
	}
	return p, true, nil
}

// MarkChannelPaid pays a channel that is still pending at the expected amount.
func (s *Store) MarkChannelPaid(ctx context.Context, id obligation.EntryID, ch obligation.Channel, expected decimal.Decimal, p obligation.Payment) (bool, error) {
	col, err := channelColumn(ch)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`
		UPDATE entries
		SET %[1]s_status = 'paid', %[1]s_paid_at = ?, %[1]s_method = ?,
		    %[1]s_reference = ?, %[1]s_remarks = ?, updated_at = ?
		WHERE id = ? AND %[1]s_status = 'pending' AND %[1]s_amount = ?
	`, col)
	paidAt := formatTime(p.PaidAt)
	return s.execConditional(ctx, query,
		paidAt, p.Method, p.Reference, p.Remarks, paidAt,
		id, expected.String(),
	)
}

// UpdatePendingAmount sets a pending channel's amount.
func (s *Store) UpdatePendingAmount(ctx context.Context, id obligation.EntryID, ch obligation.Channel, amount decimal.Decimal, requireAllPending bool, at time.Time) (bool, error) {
	col, err := channelColumn(ch)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`
		UPDATE entries SET %[1]s_amount = ?, updated_at = ?
		WHERE id = ? AND %[1]s_status = 'pending'
	`, col)
	if requireAllPending {
		query += " AND " + allChannelsPending
	}
	return s.execConditional(ctx, query, amount.String(), formatTime(at), id)
}

// DeleteOpenEntry removes an unpaid entry from minPeriod or later.
func (s *Store) DeleteOpenEntry(ctx context.Context, id obligation.EntryID, minPeriod obligation.Period) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "DELETE FROM entries WHERE id = ? AND period_key >= ? AND " + allChannelsPending
	return s.execConditional(ctx, query, id, minPeriod.Key())
}

func (s *Store) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// =============================================================================
// SCANNING
// =============================================================================

type channelRow struct {
	amount    string
	status    string
	paidAt    sql.NullString
	method    string
	reference string
	remarks   string
}

func (c *channelRow) dest() []any {
	return []any{&c.amount, &c.status, &c.paidAt, &c.method, &c.reference, &c.remarks}
}

func (c *channelRow) record() (obligation.ChannelRecord, error) {
	amount, err := parseDecimal(c.amount)
	if err != nil {
		return obligation.ChannelRecord{}, err
	}
	paidAt, err := parseOptional(c.paidAt, parseTime)
	if err != nil {
		return obligation.ChannelRecord{}, err
	}
	return obligation.ChannelRecord{
		Amount:        amount,
		Status:        obligation.PaymentStatus(c.status),
		PaidDate:      paidAt,
		PaymentMethod: c.method,
		Reference:     c.reference,
		Remarks:       c.remarks,
	}, nil
}

func scanEntry(row scanner) (obligation.Entry, error) {
	var (
		e                    obligation.Entry
		periodKey, dueDate   string
		createdAt, updatedAt string
		channels             [3]channelRow
	)
	dest := []any{
		&e.ID, &e.DefinitionID, &e.KindID, &e.PartyID, &e.PartyName, &e.Category,
		&periodKey, &dueDate,
	}
	for i := range channels {
		dest = append(dest, channels[i].dest()...)
	}
	dest = append(dest, &createdAt, &updatedAt)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	var err error
	if e.Period, err = obligation.ParsePeriod(periodKey); err != nil {
		return e, err
	}
	if e.DueDate, err = parseDate(dueDate); err != nil {
		return e, err
	}
	for i, ch := range obligation.AllChannels {
		rec, err := channels[i].record()
		if err != nil {
			return e, err
		}
		*e.Channel(ch) = rec
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return e, err
	}
	return e, nil
}
