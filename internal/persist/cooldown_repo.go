package persist

import (
	"context"
	"fmt"
	"time"
)

type CooldownRepo struct {
	db *DB
}

func NewCooldownRepo(db *DB) *CooldownRepo {
	return &CooldownRepo{db: db}
}

// Save replaces the stored cooldowns of one caster. Entries that have
// already run out are skipped.
func (r *CooldownRepo) Save(ctx context.Context, casterName string, cooldowns map[uint32]time.Duration) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cooldown begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM caster_cooldowns WHERE caster_name = $1`, casterName,
	); err != nil {
		return fmt.Errorf("cooldown clear: %w", err)
	}
	for id, left := range cooldowns {
		if left <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO caster_cooldowns (caster_name, ability_id, remaining_ms)
			 VALUES ($1, $2, $3)`,
			casterName, int64(id), max(left.Milliseconds(), 1),
		); err != nil {
			return fmt.Errorf("cooldown insert %d: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

// Load returns the stored cooldowns of one caster.
func (r *CooldownRepo) Load(ctx context.Context, casterName string) (map[uint32]time.Duration, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT ability_id, remaining_ms FROM caster_cooldowns WHERE caster_name = $1`, casterName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint32]time.Duration)
	for rows.Next() {
		var id, left int64
		if err := rows.Scan(&id, &left); err != nil {
			return nil, err
		}
		out[uint32(id)] = time.Duration(left) * time.Millisecond
	}
	return out, rows.Err()
}
