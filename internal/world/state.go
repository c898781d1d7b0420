package world

import (
	"errors"
	"fmt"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/spell"
)

// DefaultSightRange is how far a unit sees when its body does not say.
const DefaultSightRange = 60.0

var (
	ErrUnknownUnit     = errors.New("world: unknown unit")
	ErrUnknownCreature = errors.New("world: unknown creature template")
)

type factionPair struct{ a, b uint32 }

func pairOf(a, b uint32) factionPair {
	if a > b {
		a, b = b, a
	}
	return factionPair{a: a, b: b}
}

// State tracks every unit currently in-world. Components live in ecs
// stores; the AOI grid indexes positions for range searches.
// Single-goroutine access only (game loop).
type State struct {
	ecs *ecs.World
	bus *event.Bus

	transforms *ecs.PtrComponentStore[Transform]
	bodies     *ecs.PtrComponentStore[Body]
	vitals     *ecs.PtrComponentStore[Vitals]
	statuses   *ecs.PtrComponentStore[Status]

	grid      *AOIGrid
	creatures map[uint32]*CreatureTemplate
	relations map[factionPair]spell.Disposition
}

var _ spell.World = (*State)(nil)

func NewState(w *ecs.World, bus *event.Bus) *State {
	s := &State{
		ecs:        w,
		bus:        bus,
		transforms: ecs.NewPtrComponentStore[Transform](),
		bodies:     ecs.NewPtrComponentStore[Body](),
		vitals:     ecs.NewPtrComponentStore[Vitals](),
		statuses:   ecs.NewPtrComponentStore[Status](),
		grid:       NewAOIGrid(),
		creatures:  make(map[uint32]*CreatureTemplate),
		relations:  make(map[factionPair]spell.Disposition),
	}
	w.Track(s.transforms)
	w.Track(s.bodies)
	w.Track(s.vitals)
	w.Track(s.statuses)
	w.OnDestroy(s.onDestroy)
	return s
}

// Spawn creates a unit from its components and indexes it.
func (s *State) Spawn(body Body, t Transform, v Vitals) ecs.EntityID {
	id := s.ecs.CreateEntity()
	if body.SightRange <= 0 {
		body.SightRange = DefaultSightRange
	}
	if v.Values == nil {
		v.Values = make(map[data.Vital]float64)
	}
	if v.Health == 0 && !v.Dead {
		v.Health = v.MaxHealth
	}
	s.transforms.Set(id, &t)
	s.bodies.Set(id, &body)
	s.vitals.Set(id, &v)
	s.statuses.Set(id, &Status{})
	s.grid.Add(id, t.X, t.Y)
	return id
}

// RegisterCreature adds or replaces a creature template.
func (s *State) RegisterCreature(t CreatureTemplate) {
	s.creatures[t.ID] = &t
}

// SetRelation records how two factions regard each other. Relations are
// symmetric; unlisted pairs of different factions are neutral.
func (s *State) SetRelation(a, b uint32, d spell.Disposition) {
	s.relations[pairOf(a, b)] = d
}

// Disposition returns how faction from regards faction to.
func (s *State) Disposition(from, to uint32) spell.Disposition {
	if d, ok := s.relations[pairOf(from, to)]; ok {
		return d
	}
	if from == to {
		return spell.DispositionFriendly
	}
	return spell.DispositionNeutral
}

func (s *State) alive(id ecs.EntityID) bool {
	if !s.ecs.Alive(id) {
		return false
	}
	b, ok := s.bodies.Get(id)
	return ok && !b.Despawned
}

// Unit resolves id to a unit handle. Despawned units no longer resolve.
func (s *State) Unit(id ecs.EntityID) (spell.Unit, bool) {
	u, ok := s.Ref(id)
	if !ok {
		return nil, false
	}
	return u, true
}

// Ref resolves id to the concrete handle, which also implements
// spell.Caster.
func (s *State) Ref(id ecs.EntityID) (*UnitRef, bool) {
	if !s.alive(id) {
		return nil, false
	}
	return &UnitRef{id: id, s: s}, true
}

// Search returns the live units within radius of origin accepted by check,
// ordered by id.
func (s *State) Search(origin spell.Position, radius float64, check func(spell.Unit) bool) []spell.Unit {
	var out []spell.Unit
	for _, id := range s.grid.GetNearby(origin.X, origin.Y, radius) {
		u, ok := s.Ref(id)
		if !ok {
			continue
		}
		if origin.Distance(u.Position()) > radius {
			continue
		}
		if check == nil || check(u) {
			out = append(out, u)
		}
	}
	return out
}

// SpawnPositional creates the anchor entity of a positional aura from a
// creature template.
func (s *State) SpawnPositional(creatureID uint32, pos spell.Position, yaw float64) (spell.Unit, error) {
	tpl, ok := s.creatures[creatureID]
	if !ok {
		return nil, fmt.Errorf("spawn positional %d: %w", creatureID, ErrUnknownCreature)
	}
	id := s.Spawn(
		Body{Name: tpl.Name, Kind: KindPositional, CreatureID: tpl.ID, Faction: tpl.Faction, HitRadius: tpl.HitRadius},
		Transform{X: pos.X, Y: pos.Y, Z: pos.Z, Yaw: yaw},
		Vitals{MaxHealth: tpl.MaxHealth},
	)
	u, _ := s.Ref(id)
	return u, nil
}

// Despawn removes a unit from searches at once and queues it for the
// end-of-tick destroy flush.
func (s *State) Despawn(id ecs.EntityID) {
	b, ok := s.bodies.Get(id)
	if !ok || b.Despawned {
		return
	}
	b.Despawned = true
	if t, ok := s.transforms.Get(id); ok {
		s.grid.Remove(id, t.X, t.Y)
	}
	s.ecs.MarkForDestruction(id)
	event.Emit(s.bus, event.UnitDespawned{EntityID: id})
}

func (s *State) onDestroy(id ecs.EntityID) {
	b, ok := s.bodies.Get(id)
	if !ok || b.Despawned {
		return
	}
	if t, ok := s.transforms.Get(id); ok {
		s.grid.Remove(id, t.X, t.Y)
	}
}

// MoveUnit relocates a unit by its own action and emits UnitMoved, which
// interrupts casts that cannot be channelled on the move.
func (s *State) MoveUnit(id ecs.EntityID, x, y, z, yaw float64) error {
	if err := s.place(id, x, y, z, yaw); err != nil {
		return err
	}
	event.Emit(s.bus, event.UnitMoved{EntityID: id, X: x, Y: y, Z: z})
	return nil
}

// Displace relocates a unit without counting as its own movement
// (knockback, pulls).
func (s *State) Displace(id ecs.EntityID, x, y float64) error {
	t, ok := s.transforms.Get(id)
	if !ok {
		return fmt.Errorf("displace %s: %w", id, ErrUnknownUnit)
	}
	return s.place(id, x, y, t.Z, t.Yaw)
}

func (s *State) place(id ecs.EntityID, x, y, z, yaw float64) error {
	if !s.alive(id) {
		return fmt.Errorf("move %s: %w", id, ErrUnknownUnit)
	}
	t, _ := s.transforms.Get(id)
	s.grid.Move(id, t.X, t.Y, x, y)
	t.X, t.Y, t.Z, t.Yaw = x, y, z, yaw
	return nil
}

// Count returns the number of live units.
func (s *State) Count() int { return s.grid.Len() }

// Each visits every live unit in spawn order.
func (s *State) Each(fn func(*UnitRef)) {
	ecs.Each2(s.bodies, s.transforms, func(id ecs.EntityID, b *Body, _ *Transform) {
		if !b.Despawned {
			fn(&UnitRef{id: id, s: s})
		}
	})
}

// FindByName returns the first live unit with the given name.
func (s *State) FindByName(name string) (*UnitRef, bool) {
	var found *UnitRef
	s.Each(func(u *UnitRef) {
		if found == nil && u.Name() == name {
			found = u
		}
	})
	return found, found != nil
}
