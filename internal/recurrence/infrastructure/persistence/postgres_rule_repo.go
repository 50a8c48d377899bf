package persistence

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const ruleColumns = `id, owner_id, title, description, frequency, days_of_week, fire_hour, fire_minute,
	next_fire_at, is_active, last_fired_at, fire_count, version, created_at, updated_at`

// PostgresRuleRepository implements domain.Repository using PostgreSQL.
type PostgresRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository.
func NewPostgresRuleRepository(pool *pgxpool.Pool) *PostgresRuleRepository {
	return &PostgresRuleRepository{pool: pool}
}

func (r *PostgresRuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	def := rule.Definition()
	days := pq.Array(indices64(def.Days))

	if rule.IsNew() {
		_, err := exec.Exec(ctx, `
			INSERT INTO recurrence_rules (`+ruleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
		`,
			rule.ID(), rule.OwnerID(), rule.Title(), rule.Description(),
			string(def.Frequency), days, def.Time.Hour, def.Time.Minute,
			rule.NextFireAt(), rule.IsActive(), rule.LastFiredAt(), rule.FireCount(),
			rule.CreatedAt(), rule.UpdatedAt(),
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

	tag, err := exec.Exec(ctx, `
		UPDATE recurrence_rules SET
			title = $3,
			description = $4,
			frequency = $5,
			days_of_week = $6,
			fire_hour = $7,
			fire_minute = $8,
			next_fire_at = $9,
			is_active = $10,
			last_fired_at = $11,
			fire_count = $12,
			updated_at = $13,
			version = version + 1
		WHERE id = $1 AND version = $2
	`,
		rule.ID(), rule.Version(), rule.Title(), rule.Description(),
		string(def.Frequency), days, def.Time.Hour, def.Time.Minute,
		rule.NextFireAt(), rule.IsActive(), rule.LastFiredAt(), rule.FireCount(),
		rule.UpdatedAt(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleConflict
	}
	rule.SetVersion(rule.Version() + 1)
	return nil
}

func (r *PostgresRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+ruleColumns+` FROM recurrence_rules WHERE id = $1`, id)
	return scanPostgresRule(row)
}

func (r *PostgresRuleRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID, includeInactive bool) ([]*domain.Rule, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, `
		SELECT `+ruleColumns+` FROM recurrence_rules
		WHERE owner_id = $1 AND ($2 OR is_active)
		ORDER BY next_fire_at, id
	`, ownerID, includeInactive)
	if err != nil {
		return nil, err
	}
	return collectPostgresRules(rows)
}

func (r *PostgresRuleRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Rule, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, `
		SELECT `+ruleColumns+` FROM recurrence_rules
		WHERE is_active AND next_fire_at <= $1
		ORDER BY next_fire_at, id
		LIMIT $2
	`, now, lim)
	if err != nil {
		return nil, err
	}
	return collectPostgresRules(rows)
}

func (r *PostgresRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM recurrence_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

func collectPostgresRules(rows pgx.Rows) ([]*domain.Rule, error) {
	defer rows.Close()
	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanPostgresRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanPostgresRule(row pgx.Row) (*domain.Rule, error) {
	var (
		id, ownerID            uuid.UUID
		title, desc, frequency string
		days                   []int64
		hour, minute           int
		nextFireAt             time.Time
		active                 bool
		lastFiredAt            *time.Time
		fireCount, version     int
		createdAt, updatedAt   time.Time
	)
	err := row.Scan(&id, &ownerID, &title, &desc, &frequency, pq.Array(&days), &hour, &minute,
		&nextFireAt, &active, &lastFiredAt, &fireCount, &version, &createdAt, &updatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}

	if lastFiredAt != nil {
		t := lastFiredAt.UTC()
		lastFiredAt = &t
	}
	def := domain.Definition{
		Frequency: domain.Frequency(frequency),
		Days:      domain.RestoreWeekdays(ints(days)...),
		Time:      domain.TimeOfDay{Hour: hour, Minute: minute},
	}
	base := sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version)
	return domain.RehydrateRule(base, ownerID, title, desc, def, nextFireAt.UTC(), active, lastFiredAt, fireCount), nil
}

func indices64(days domain.Weekdays) []int64 {
	idx := days.Indices()
	out := make([]int64, len(idx))
	for i, d := range idx {
		out[i] = int64(d)
	}
	return out
}

func ints(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
