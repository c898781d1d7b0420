package system

import (
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	coresys "github.com/l1jgo/spellengine/internal/core/system"
	"github.com/l1jgo/spellengine/internal/spell"
	"go.uber.org/zap"
)

// InterruptSystem cancels casts whose caster moved or died during the
// previous tick. Phase 1 (PreUpdate), registered after EventDispatchSystem.
type InterruptSystem struct {
	spells *spell.Manager
	log    *zap.Logger
	moved  []ecs.EntityID
	died   []ecs.EntityID
}

func NewInterruptSystem(spells *spell.Manager, bus *event.Bus, log *zap.Logger) *InterruptSystem {
	s := &InterruptSystem{spells: spells, log: log}
	event.Subscribe(bus, func(ev event.UnitMoved) { s.moved = append(s.moved, ev.EntityID) })
	event.Subscribe(bus, func(ev event.UnitDied) { s.died = append(s.died, ev.EntityID) })
	return s
}

func (s *InterruptSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *InterruptSystem) Update(_ time.Duration) {
	for _, id := range s.moved {
		if n := s.spells.InterruptMovement(id); n > 0 {
			s.log.Debug("casts interrupted by movement", zap.Stringer("caster", id), zap.Int("count", n))
		}
	}
	// 死亡: 中斷所有施法
	for _, id := range s.died {
		s.spells.Cancel(id, spell.ResultInterrupted)
	}
	s.moved = s.moved[:0]
	s.died = s.died[:0]
}
