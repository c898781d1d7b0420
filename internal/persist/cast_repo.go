package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/spellengine/internal/spell"
)

// StoredCast is one persisted live cast.
type StoredCast struct {
	CasterName string
	Snapshot   *spell.Snapshot
}

type CastRepo struct {
	db *DB
}

func NewCastRepo(db *DB) *CastRepo {
	return &CastRepo{db: db}
}

// ReplaceAll swaps the stored casts for casts in one transaction, so a
// crash never leaves a half-written set behind.
func (r *CastRepo) ReplaceAll(ctx context.Context, casts []StoredCast) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cast snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cast_snapshots`); err != nil {
		return fmt.Errorf("cast snapshot clear: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range casts {
		raw, err := spell.EncodeSnapshot(c.Snapshot)
		if err != nil {
			return fmt.Errorf("encode cast %d: %w", c.Snapshot.CastingID, err)
		}
		batch.Queue(
			`INSERT INTO cast_snapshots (casting_id, caster_id, caster_name, ability_id, state)
			 VALUES ($1, $2, $3, $4, $5)`,
			int64(c.Snapshot.CastingID), int64(c.Snapshot.CasterID), c.CasterName,
			int64(c.Snapshot.AbilityID), raw,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("cast snapshot insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadAll returns every stored cast in casting id order.
func (r *CastRepo) LoadAll(ctx context.Context) ([]StoredCast, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT caster_name, state FROM cast_snapshots ORDER BY casting_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StoredCast
	for rows.Next() {
		var (
			name string
			raw  []byte
		)
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		snap, err := spell.DecodeSnapshot(raw)
		if err != nil {
			return nil, fmt.Errorf("cast snapshot for %s: %w", name, err)
		}
		result = append(result, StoredCast{CasterName: name, Snapshot: snap})
	}
	return result, rows.Err()
}

// Delete drops one stored cast.
func (r *CastRepo) Delete(ctx context.Context, castingID uint32) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM cast_snapshots WHERE casting_id = $1`, int64(castingID),
	)
	return err
}
