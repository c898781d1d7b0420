package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	coresys "github.com/l1jgo/spellengine/internal/core/system"
	"github.com/l1jgo/spellengine/internal/spell"
	"github.com/l1jgo/spellengine/internal/world"
	"go.uber.org/zap"
)

// RequestKind selects what a queued spell request does.
type RequestKind uint8

const (
	RequestCast RequestKind = iota
	RequestTap
	RequestCancel
	RequestInteraction
)

var requestKindNames = [...]string{"cast", "tap", "cancel", "interaction"}

func (k RequestKind) String() string {
	if int(k) < len(requestKindNames) {
		return requestKindNames[k]
	}
	return fmt.Sprintf("request(%d)", uint8(k))
}

// Request is one caster action waiting for the next tick.
type Request struct {
	Kind      RequestKind
	CasterID  ecs.EntityID
	AbilityID uint32       // cast, tap
	TargetID  ecs.EntityID // cast
	CastingID uint32       // interaction
	Success   bool         // interaction
}

var ErrCasterGone = errors.New("system: caster not in world")

// SpellSystem drains queued spell requests and advances every cast.
// Phase 2 (Update).
type SpellSystem struct {
	spells     *spell.Manager
	world      *world.State
	log        *zap.Logger
	requests   []Request
	maxPerTick int
}

func NewSpellSystem(spells *spell.Manager, ws *world.State, maxPerTick int, log *zap.Logger) *SpellSystem {
	return &SpellSystem{spells: spells, world: ws, maxPerTick: maxPerTick, log: log}
}

func (s *SpellSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Queue adds a request for the next tick.
func (s *SpellSystem) Queue(req Request) {
	s.requests = append(s.requests, req)
}

// Pending returns the number of requests not yet handled.
func (s *SpellSystem) Pending() int { return len(s.requests) }

// Update handles at most maxPerTick requests, oldest first, then advances
// the casts. Requests over the limit wait for the next tick.
func (s *SpellSystem) Update(dt time.Duration) {
	n := len(s.requests)
	if s.maxPerTick > 0 && n > s.maxPerTick {
		n = s.maxPerTick
	}
	for _, req := range s.requests[:n] {
		if err := s.handle(req); err != nil {
			s.log.Debug("spell request rejected",
				zap.Stringer("kind", req.Kind),
				zap.Stringer("caster", req.CasterID),
				zap.Uint32("ability_id", req.AbilityID),
				zap.Error(err))
		}
	}
	s.requests = append(s.requests[:0], s.requests[n:]...)

	s.spells.Update(dt)
}

func (s *SpellSystem) handle(req Request) error {
	caster, ok := s.world.Ref(req.CasterID)
	if !ok {
		return ErrCasterGone
	}
	switch req.Kind {
	case RequestCast:
		if caster.Dead() {
			return fmt.Errorf("cast %d: caster is dead", req.AbilityID)
		}
		_, err := s.spells.Cast(caster, req.AbilityID, spell.Parameters{
			PrimaryTargetID: req.TargetID,
			UserInitiated:   true,
		})
		return err
	case RequestTap:
		return s.spells.Tap(req.CasterID, req.AbilityID)
	case RequestCancel:
		s.spells.Cancel(req.CasterID, spell.ResultCancelled)
		return nil
	case RequestInteraction:
		c := s.spells.Find(req.CastingID)
		if c == nil || c.Caster().ID() != req.CasterID {
			return fmt.Errorf("interaction for cast %d: %w", req.CastingID, spell.ErrInvalidState)
		}
		if req.Success {
			return c.SucceedClientInteraction()
		}
		return c.FailClientInteraction()
	}
	return fmt.Errorf("unknown request kind %s", req.Kind)
}

// SpellFinishSystem moves casts with nothing left to do to Finished.
// Phase 3 (PostUpdate).
type SpellFinishSystem struct {
	spells *spell.Manager
}

func NewSpellFinishSystem(spells *spell.Manager) *SpellFinishSystem {
	return &SpellFinishSystem{spells: spells}
}

func (s *SpellFinishSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SpellFinishSystem) Update(dt time.Duration) {
	s.spells.LateUpdate(dt)
}
