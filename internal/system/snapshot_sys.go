package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/spellengine/internal/core/system"
	"github.com/l1jgo/spellengine/internal/persist"
	"github.com/l1jgo/spellengine/internal/spell"
	"github.com/l1jgo/spellengine/internal/world"
	"go.uber.org/zap"
)

// CastStore persists live cast snapshots.
type CastStore interface {
	ReplaceAll(ctx context.Context, casts []persist.StoredCast) error
	LoadAll(ctx context.Context) ([]persist.StoredCast, error)
}

// CooldownStore persists per-caster ability cooldowns.
type CooldownStore interface {
	Save(ctx context.Context, casterName string, cooldowns map[uint32]time.Duration) error
	Load(ctx context.Context, casterName string) (map[uint32]time.Duration, error)
}

// SnapshotSystem periodically saves every live cast and every player's
// cooldowns. Phase 5 (Persist).
type SnapshotSystem struct {
	spells    *spell.Manager
	world     *world.State
	casts     CastStore
	cooldowns CooldownStore
	log       *zap.Logger
	interval  time.Duration
	elapsed   time.Duration
	timeout   time.Duration
}

func NewSnapshotSystem(spells *spell.Manager, ws *world.State, casts CastStore, cooldowns CooldownStore, interval time.Duration, log *zap.Logger) *SnapshotSystem {
	return &SnapshotSystem{
		spells:    spells,
		world:     ws,
		casts:     casts,
		cooldowns: cooldowns,
		log:       log,
		interval:  interval,
		timeout:   5 * time.Second,
	}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *SnapshotSystem) Update(dt time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	if err := s.SaveAll(); err != nil {
		s.log.Error("snapshot save failed", zap.Error(err))
	}
}

// SaveAll persists everything immediately. Called on graceful shutdown.
func (s *SnapshotSystem) SaveAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snaps := s.spells.Snapshots()
	stored := make([]persist.StoredCast, 0, len(snaps))
	for _, snap := range snaps {
		ref, ok := s.world.Ref(snap.CasterID)
		if !ok {
			continue
		}
		stored = append(stored, persist.StoredCast{CasterName: ref.Name(), Snapshot: snap})
	}
	if err := s.casts.ReplaceAll(ctx, stored); err != nil {
		return err
	}

	var firstErr error
	players := 0
	s.world.Each(func(u *world.UnitRef) {
		if !u.IsPlayer() {
			return
		}
		players++
		if err := s.cooldowns.Save(ctx, u.Name(), s.spells.State(u).Cooldowns()); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	s.log.Debug("spell state saved", zap.Int("casts", len(stored)), zap.Int("players", players))
	return firstErr
}

// Restore reapplies saved cooldowns and resumes saved casts. Casts whose
// caster is gone or no longer matches are skipped.
func (s *SnapshotSystem) Restore(ctx context.Context) (int, error) {
	var loadErr error
	s.world.Each(func(u *world.UnitRef) {
		if !u.IsPlayer() || loadErr != nil {
			return
		}
		cds, err := s.cooldowns.Load(ctx, u.Name())
		if err != nil {
			loadErr = err
			return
		}
		st := s.spells.State(u)
		for id, left := range cds {
			st.SetCooldown(id, left)
		}
	})
	if loadErr != nil {
		return 0, loadErr
	}

	stored, err := s.casts.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, c := range stored {
		ref, ok := s.world.FindByName(c.CasterName)
		if !ok {
			s.log.Warn("saved cast has no caster", zap.String("caster", c.CasterName), zap.Uint32("casting_id", c.Snapshot.CastingID))
			continue
		}
		if _, err := s.spells.Restore(ref, c.Snapshot); err != nil {
			s.log.Warn("saved cast not restored", zap.String("caster", c.CasterName), zap.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}
