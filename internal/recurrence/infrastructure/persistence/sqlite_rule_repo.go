package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRuleRepository implements domain.Repository using SQLite. Weekdays
// are stored as comma separated indices.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

func (r *SQLiteRuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	def := rule.Definition()

	if rule.IsNew() {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO recurrence_rules (`+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`,
			rule.ID().String(), rule.OwnerID().String(), rule.Title(), rule.Description(),
			string(def.Frequency), formatDays(def.Days), def.Time.Hour, def.Time.Minute,
			sharedPersistence.FormatSQLiteTime(rule.NextFireAt()), boolToInt(rule.IsActive()),
			sharedPersistence.FormatSQLiteTimePtr(rule.LastFiredAt()), rule.FireCount(),
			sharedPersistence.FormatSQLiteTime(rule.CreatedAt()),
			sharedPersistence.FormatSQLiteTime(rule.UpdatedAt()),
		)
		if database.IsUniqueViolation(err) {
			return domain.ErrRuleConflict
		}
		if err != nil {
			return err
		}
		rule.SetVersion(1)
		return nil
	}

	res, err := exec.ExecContext(ctx, `
		UPDATE recurrence_rules SET
			title = ?,
			description = ?,
			frequency = ?,
			days_of_week = ?,
			fire_hour = ?,
			fire_minute = ?,
			next_fire_at = ?,
			is_active = ?,
			last_fired_at = ?,
			fire_count = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		rule.Title(), rule.Description(),
		string(def.Frequency), formatDays(def.Days), def.Time.Hour, def.Time.Minute,
		sharedPersistence.FormatSQLiteTime(rule.NextFireAt()), boolToInt(rule.IsActive()),
		sharedPersistence.FormatSQLiteTimePtr(rule.LastFiredAt()), rule.FireCount(),
		sharedPersistence.FormatSQLiteTime(rule.UpdatedAt()),
		rule.ID().String(), rule.Version(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRuleConflict
	}
	rule.SetVersion(rule.Version() + 1)
	return nil
}

func (r *SQLiteRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurrence_rules WHERE id = ?`, id.String())
	return scanSQLiteRule(row)
}

func (r *SQLiteRuleRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID, includeInactive bool) ([]*domain.Rule, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM recurrence_rules
		WHERE owner_id = ? AND (? = 1 OR is_active = 1)
		ORDER BY next_fire_at, id
	`, ownerID.String(), boolToInt(includeInactive))
	if err != nil {
		return nil, err
	}
	return collectSQLiteRules(rows)
}

func (r *SQLiteRuleRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Rule, error) {
	if limit <= 0 {
		limit = -1
	}
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM recurrence_rules
		WHERE is_active = 1 AND next_fire_at <= ?
		ORDER BY next_fire_at, id
		LIMIT ?
	`, sharedPersistence.FormatSQLiteTime(now), limit)
	if err != nil {
		return nil, err
	}
	return collectSQLiteRules(rows)
}

func (r *SQLiteRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `DELETE FROM recurrence_rules WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectSQLiteRules(rows *sql.Rows) ([]*domain.Rule, error) {
	defer rows.Close()
	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanSQLiteRule(row rowScanner) (*domain.Rule, error) {
	var (
		id, ownerID, title, desc string
		frequency, days          string
		hour, minute             int
		nextFireAt               string
		active                   int
		lastFiredAt              sql.NullString
		fireCount, version       int
		createdAt, updatedAt     string
	)
	err := row.Scan(&id, &ownerID, &title, &desc, &frequency, &days, &hour, &minute,
		&nextFireAt, &active, &lastFiredAt, &fireCount, &version, &createdAt, &updatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}

	ruleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse rule id: %w", err)
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	next, err := sharedPersistence.ParseSQLiteTime(nextFireAt)
	if err != nil {
		return nil, err
	}
	lastFired, err := sharedPersistence.ParseSQLiteTimePtr(lastFiredAt)
	if err != nil {
		return nil, err
	}
	created, err := sharedPersistence.ParseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := sharedPersistence.ParseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}

	def := domain.Definition{
		Frequency: domain.Frequency(frequency),
		Days:      parseDays(days),
		Time:      domain.TimeOfDay{Hour: hour, Minute: minute},
	}
	base := sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(ruleID, created, updated), version)
	return domain.RehydrateRule(base, owner, title, desc, def, next, active == 1, lastFired, fireCount), nil
}

func formatDays(days domain.Weekdays) string {
	idx := days.Indices()
	parts := make([]string, len(idx))
	for i, d := range idx {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// parseDays never fails; unreadable entries become invalid weekdays that
// surface when the rule is next scheduled.
func parseDays(s string) domain.Weekdays {
	var indices []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			i = -1
		}
		indices = append(indices, i)
	}
	return domain.RestoreWeekdays(indices...)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
