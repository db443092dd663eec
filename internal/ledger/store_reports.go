package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveReport inserts a sealed window report in pending state.
func (s *Store) SaveReport(ctx context.Context, report *Report) error {
	if report == nil {
		return errors.New("report is nil")
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	if report.Status == "" {
		report.Status = ReportPending
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO reports (
            id, window_start, window_end, subject, body, attachment,
            recipients, status, attempts, last_error, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.WindowStart.UTC().Format(time.RFC3339Nano),
		report.WindowEnd.UTC().Format(time.RFC3339Nano),
		report.Subject,
		report.Body,
		report.Attachment,
		encodeRecipients(report.Recipients),
		report.Status,
		report.Attempts,
		nullableString(report.LastError),
		report.CreatedAt.Format(time.RFC3339Nano),
		report.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport fetches a report by ID, or nil when absent.
func (s *Store) GetReport(ctx context.Context, id string) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// PendingReports returns undelivered, unexhausted reports oldest-first.
// Called at startup to resume dispatch after a restart.
func (s *Store) PendingReports(ctx context.Context) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status = ? ORDER BY created_at`,
		ReportPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// ListReports returns reports newest-first, up to limit (0 means all).
func (s *Store) ListReports(ctx context.Context, limit int) ([]*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// BumpReportAttempt persists one more send attempt before the attempt is
// made, so a crash mid-send still counts it.
func (s *Store) BumpReportAttempt(ctx context.Context, id string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE reports SET attempts = attempts + 1, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return 0, fmt.Errorf("bump report attempt: %w", err)
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts FROM reports WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read report attempts: %w", err)
	}
	return attempts, nil
}

// SetReportStatus transitions a report. Delivered and failed are terminal;
// rows already terminal are left untouched.
func (s *Store) SetReportStatus(ctx context.Context, id string, status ReportStatus, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, last_error = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		status,
		nullableString(lastError),
		now,
		id,
		ReportDelivered,
		ReportFailed,
	)
	if err != nil {
		return fmt.Errorf("set report status: %w", err)
	}
	return nil
}

// RetryReport moves a failed report back to pending and resets its attempt
// counter. Operator action via the CLI, not part of automatic dispatch.
func (s *Store) RetryReport(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		ReportPending, now, id, ReportFailed,
	)
	if err != nil {
		return false, fmt.Errorf("retry report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const reportColumns = `id, window_start, window_end, subject, body, attachment, recipients, status, attempts, last_error, created_at, updated_at`

func scanReport(row rowScanner) (*Report, error) {
	var (
		report      Report
		windowStart string
		windowEnd   string
		recipients  string
		lastError   sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(
		&report.ID,
		&windowStart,
		&windowEnd,
		&report.Subject,
		&report.Body,
		&report.Attachment,
		&recipients,
		&report.Status,
		&report.Attempts,
		&lastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	report.LastError = lastError.String
	report.Recipients = decodeRecipients(recipients)
	for _, raw := range []struct {
		value  string
		target *time.Time
	}{
		{windowStart, &report.WindowStart},
		{windowEnd, &report.WindowEnd},
		{createdAt, &report.CreatedAt},
		{updatedAt, &report.UpdatedAt},
	} {
		if parsed, err := time.Parse(time.RFC3339Nano, raw.value); err == nil {
			*raw.target = parsed
		}
	}
	return &report, nil
}

// Recipients are stored as a JSON array: display names may legally contain
// commas, so a joined string cannot encode the list.
func encodeRecipients(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeRecipients(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	// Rows written before the JSON encoding hold a comma joined list.
	return strings.Split(raw, ",")
}

func collectReports(rows *sql.Rows) ([]*Report, error) {
	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
