package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ Storage     = (*SQLite)(nil)
	_ Snapshotter = (*SQLite)(nil)
)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, logger: slog.Default()}, nil
}

// SetLogger sets the logger used to report skipped rows.
func (s *SQLite) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *SQLite) UpsertDeviceToken(ctx context.Context, token *model.OwnerDeviceToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (owner_id, push_token, email, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   push_token = excluded.push_token,
		   email = excluded.email,
		   updated_at = excluded.updated_at`,
		token.OwnerID, token.PushToken, token.Email, token.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert device token: %w", err)
	}
	return nil
}

func (s *SQLite) GetDeviceToken(ctx context.Context, ownerID string) (*model.OwnerDeviceToken, error) {
	var t model.OwnerDeviceToken
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, push_token, email, updated_at FROM owners WHERE owner_id = ?`, ownerID,
	).Scan(&t.OwnerID, &t.PushToken, &t.Email, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner %q: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device token: %w", err)
	}
	return &t, nil
}

func (s *SQLite) ListDeviceTokens(ctx context.Context) ([]model.OwnerDeviceToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, push_token, email, updated_at FROM owners
		 WHERE push_token <> '' ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.OwnerDeviceToken
	for rows.Next() {
		var t model.OwnerDeviceToken
		if err := rows.Scan(&t.OwnerID, &t.PushToken, &t.Email, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan owner row: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *SQLite) SetSettings(ctx context.Context, settings *model.BudgetSettings) error {
	days, err := json.Marshal(settings.ReminderDays)
	if err != nil {
		return fmt.Errorf("encode reminder days: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO budget_settings (owner_id, daily_limit, weekly_limit, monthly_limit,
		   alert_threshold_pct, notifications_enabled, warranty_reminders_enabled, reminder_days, timezone, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   daily_limit = excluded.daily_limit,
		   weekly_limit = excluded.weekly_limit,
		   monthly_limit = excluded.monthly_limit,
		   alert_threshold_pct = excluded.alert_threshold_pct,
		   notifications_enabled = excluded.notifications_enabled,
		   warranty_reminders_enabled = excluded.warranty_reminders_enabled,
		   reminder_days = excluded.reminder_days,
		   timezone = excluded.timezone,
		   updated_at = excluded.updated_at`,
		settings.OwnerID,
		nullDecimal(settings.DailyLimit), nullDecimal(settings.WeeklyLimit), nullDecimal(settings.MonthlyLimit),
		settings.AlertThresholdPct, settings.NotificationsEnabled, settings.WarrantyRemindersEnabled,
		string(days), settings.Timezone, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	return nil
}

func (s *SQLite) GetSettings(ctx context.Context, ownerID string) (*model.BudgetSettings, error) {
	var (
		st                     model.BudgetSettings
		daily, weekly, monthly decimal.NullDecimal
		days                   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id, daily_limit, weekly_limit, monthly_limit, alert_threshold_pct,
		   notifications_enabled, warranty_reminders_enabled, reminder_days, timezone
		 FROM budget_settings WHERE owner_id = ?`, ownerID,
	).Scan(&st.OwnerID, &daily, &weekly, &monthly, &st.AlertThresholdPct,
		&st.NotificationsEnabled, &st.WarrantyRemindersEnabled, &days, &st.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settings for %q: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	st.DailyLimit = decimalPtr(daily)
	st.WeeklyLimit = decimalPtr(weekly)
	st.MonthlyLimit = decimalPtr(monthly)
	if days != "" {
		if err := json.Unmarshal([]byte(days), &st.ReminderDays); err != nil {
			return nil, fmt.Errorf("decode reminder days for %q: %w", ownerID, err)
		}
	}
	return &st, nil
}

func (s *SQLite) RecordSpend(ctx context.Context, record *model.SpendRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spend_records (id, owner_id, amount, occurred_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   amount = excluded.amount,
		   occurred_at = excluded.occurred_at`,
		record.ID, record.OwnerID, record.Amount, record.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert spend record: %w", err)
	}
	return nil
}

func (s *SQLite) ListSpend(ctx context.Context, ownerID string, start, end time.Time) ([]model.SpendRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, amount, occurred_at FROM spend_records
		 WHERE owner_id = ? AND occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at`,
		ownerID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query spend: %w", err)
	}
	defer rows.Close()

	var records []model.SpendRecord
	for rows.Next() {
		var (
			r      model.SpendRecord
			amount decimal.NullDecimal
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &amount, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan spend row: %w", err)
		}
		if amount.Valid {
			r.Amount = amount.Decimal
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) FindAlert(ctx context.Context, ownerID string, kind model.BudgetKind, total decimal.Decimal) (*model.AlertRecord, error) {
	var a model.AlertRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, budget_kind, triggering_total, sent_at FROM budget_alerts
		 WHERE owner_id = ? AND budget_kind = ? AND triggering_total = ?`,
		ownerID, string(kind), total.String(),
	).Scan(&a.ID, &a.OwnerID, &a.Kind, &a.TriggeringTotal, &a.SentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return &a, nil
}

func (s *SQLite) InsertAlert(ctx context.Context, alert *model.AlertRecord) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.SentAt.IsZero() {
		alert.SentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (id, owner_id, budget_kind, triggering_total, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		alert.ID, alert.OwnerID, string(alert.Kind), alert.TriggeringTotal.String(), alert.SentAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *SQLite) ListAlerts(ctx context.Context, ownerID string) ([]model.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, budget_kind, triggering_total, sent_at FROM budget_alerts
		 WHERE owner_id = ? ORDER BY sent_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.AlertRecord
	for rows.Next() {
		var a model.AlertRecord
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.TriggeringTotal, &a.SentAt); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLite) SaveDocument(ctx context.Context, doc *model.TrackedDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	sent := doc.RemindersSent
	if sent == nil {
		sent = []string{}
	}
	encoded, err := json.Marshal(sent)
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, title, folder_name, expiry_date, reminders_sent, last_reminder_sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   title = excluded.title,
		   folder_name = excluded.folder_name,
		   expiry_date = excluded.expiry_date,
		   reminders_sent = excluded.reminders_sent,
		   last_reminder_sent_at = excluded.last_reminder_sent_at`,
		doc.ID, doc.OwnerID, doc.Title, doc.FolderName,
		nullTime(doc.ExpiryDate), string(encoded), nullTime(doc.LastReminderSentAt),
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *SQLite) ListExpiringDocuments(ctx context.Context, ownerID string) ([]model.TrackedDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, folder_name, expiry_date, reminders_sent, last_reminder_sent_at
		 FROM documents WHERE owner_id = ? AND expiry_date IS NOT NULL ORDER BY expiry_date`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.TrackedDocument
	for rows.Next() {
		var (
			d      model.TrackedDocument
			expiry any
			last   sql.NullTime
			sent   string
		)
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.FolderName, &expiry, &sent, &last); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		at, err := sqlDate(expiry)
		if err != nil {
			s.logger.Warn("skipping document with bad expiry date", "document", d.ID, "owner", ownerID, "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(sent), &d.RemindersSent); err != nil {
			s.logger.Warn("skipping document with bad reminder list", "document", d.ID, "owner", ownerID, "error", err)
			continue
		}
		d.ExpiryDate = &at
		d.LastReminderSentAt = timePtr(last)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// sqlDate converts a scanned DATETIME value, which the driver returns as a
// time.Time or as the original text when it cannot parse it.
func sqlDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseDate(t)
	case []byte:
		return parseDate(string(t))
	}
	return time.Time{}, fmt.Errorf("unsupported date value %T", v)
}

func (s *SQLite) MarkReminderSent(ctx context.Context, documentID, key string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET reminders_sent = json_insert(reminders_sent, '$[#]', ?), last_reminder_sent_at = ?
		 WHERE id = ?`,
		key, at.UTC(), documentID,
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("document %q: %w", documentID, ErrNotFound)
	}
	return nil
}

// Snapshot writes a consistent copy of the database to path.
func (s *SQLite) Snapshot(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
