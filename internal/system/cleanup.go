package system

import (
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	coresys "github.com/l1jgo/spellengine/internal/core/system"
	"github.com/l1jgo/spellengine/internal/spell"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end
// and drops the cast bookkeeping of every destroyed unit.
// Phase 6 (Cleanup).
type CleanupSystem struct {
	world     *ecs.World
	destroyed int
}

func NewCleanupSystem(w *ecs.World, spells *spell.Manager) *CleanupSystem {
	s := &CleanupSystem{world: w}
	w.OnDestroy(func(id ecs.EntityID) {
		spells.Forget(id)
		s.destroyed++
	})
	return s
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if s.world.PendingDestruction() == 0 {
		return
	}
	s.world.FlushDestroyQueue()
}

// Destroyed returns how many entities have been flushed so far.
func (s *CleanupSystem) Destroyed() int { return s.destroyed }
