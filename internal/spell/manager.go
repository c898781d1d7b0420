package spell

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"go.uber.org/zap"
)

// DefaultAuraInterval is the reselection interval of persistent casts.
const DefaultAuraInterval = 100 * time.Millisecond

type allowAll struct{}

func (allowAll) Meets(Unit, uint32) bool { return true }

type emptyWorld struct{}

func (emptyWorld) Search(Position, float64, func(Unit) bool) []Unit { return nil }
func (emptyWorld) Unit(ecs.EntityID) (Unit, bool)                   { return nil, false }
func (emptyWorld) SpawnPositional(uint32, Position, float64) (Unit, error) {
	return nil, fmt.Errorf("spell: world has no positional entities")
}
func (emptyWorld) Despawn(ecs.EntityID) {}

// Manager owns every live cast and the per-player caster state. It is the
// surface the tick loop drives.
type Manager struct {
	deps     *Deps
	casts    []*Instance
	staged   []*Instance
	updating bool
	states   map[ecs.EntityID]*CasterState
}

// NewManager fills unset dependencies with defaults. Abilities is required.
func NewManager(deps Deps) *Manager {
	if deps.Abilities == nil {
		panic("spell: manager needs an ability lookup")
	}
	if deps.Prereqs == nil {
		deps.Prereqs = allowAll{}
	}
	if deps.World == nil {
		deps.World = emptyWorld{}
	}
	if deps.Handlers == nil {
		deps.Handlers = NewHandlerTable()
	}
	if deps.IDs == nil {
		deps.IDs = NewIDAllocator()
	}
	if deps.Bus == nil {
		deps.Bus = event.NewBus()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(1))
	}
	if deps.AuraInterval <= 0 {
		deps.AuraInterval = DefaultAuraInterval
	}
	return &Manager{deps: &deps, states: make(map[ecs.EntityID]*CasterState)}
}

func (m *Manager) Deps() *Deps { return m.deps }

// Cast starts abilityID for caster. A waiting threshold cast of the same
// ability receives the signal instead of a new cast being created. The
// returned instance is nil only when the ability is unknown.
func (m *Manager) Cast(caster Caster, abilityID uint32, params Parameters) (*Instance, error) {
	info := m.deps.Abilities.Get(abilityID)
	if info == nil {
		return nil, fmt.Errorf("cast %d: %w", abilityID, ErrUnknownAbility)
	}
	if w := m.waiting(caster.ID(), abilityID); w != nil {
		return w, w.Cast()
	}
	c := newInstance(m, caster, info, params)
	if err := c.Cast(); err != nil {
		return c, err
	}
	m.add(c)
	return c, nil
}

// Tap delivers a threshold signal to the caster's waiting cast of abilityID.
func (m *Manager) Tap(casterID ecs.EntityID, abilityID uint32) error {
	w := m.waiting(casterID, abilityID)
	if w == nil {
		return fmt.Errorf("tap %d for %s: no waiting cast: %w", abilityID, casterID, ErrInvalidState)
	}
	return w.Cast()
}

func (m *Manager) waiting(casterID ecs.EntityID, abilityID uint32) *Instance {
	for _, c := range m.casts {
		if c.caster.ID() == casterID && c.info.ID == abilityID && c.status == StatusWaiting && c.threshold != nil {
			return c
		}
	}
	return nil
}

func (m *Manager) add(c *Instance) {
	if m.updating {
		m.staged = append(m.staged, c)
		return
	}
	m.casts = append(m.casts, c)
}

// castProxy starts a cast on behalf of a proxy. Failures are silent.
func (m *Manager) castProxy(caster Caster, abilityID uint32, params Parameters) {
	info := m.deps.Abilities.Get(abilityID)
	if info == nil {
		m.deps.Log.Warn("proxy references unknown ability", zap.Uint32("ability_id", abilityID))
		return
	}
	c := newInstance(m, caster, info, params)
	if err := c.Cast(); err != nil {
		c.log.Debug("proxy cast rejected", zap.Error(err))
		return
	}
	m.add(c)
}

// Cancel cancels every cast of casterID.
func (m *Manager) Cancel(casterID ecs.EntityID, result CastResult) {
	for _, c := range m.CastsOf(casterID) {
		c.CancelCast(result)
	}
}

// InterruptMovement cancels the casts of casterID that moving interrupts.
func (m *Manager) InterruptMovement(casterID ecs.EntityID) int {
	n := 0
	for _, c := range m.CastsOf(casterID) {
		if c.IsCasting() && c.IsMovingInterrupted() {
			c.CancelCast(ResultCasterMovement)
			n++
		}
	}
	return n
}

// FinishCast finishes the cast with the given casting id.
func (m *Manager) FinishCast(castingID uint32) bool {
	c := m.Find(castingID)
	if c == nil {
		return false
	}
	c.Finish()
	return true
}

// Update advances every cast and every caster state by dt.
func (m *Manager) Update(dt time.Duration) {
	for _, s := range m.states {
		s.Update(dt)
	}
	m.updating = true
	for _, c := range m.casts {
		c.Update(dt)
	}
	m.updating = false
	m.merge()
	m.recastContinuous()
}

// LateUpdate finishes casts that are done and forgets terminal ones.
func (m *Manager) LateUpdate(dt time.Duration) {
	m.updating = true
	for _, c := range m.casts {
		c.LateUpdate(dt)
	}
	m.updating = false

	live := m.casts[:0]
	for _, c := range m.casts {
		if !c.status.Terminal() {
			live = append(live, c)
		}
	}
	for i := len(live); i < len(m.casts); i++ {
		m.casts[i] = nil
	}
	m.casts = live
	m.merge()
}

func (m *Manager) merge() {
	if len(m.staged) == 0 {
		return
	}
	m.casts = append(m.casts, m.staged...)
	m.staged = m.staged[:0]
}

func (m *Manager) recastContinuous() {
	var ids []ecs.EntityID
	for id, s := range m.states {
		if s.ContinuousCast() != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s := m.states[id]
		ability := s.ContinuousCast()
		if m.IsCasting(id, nil) {
			continue
		}
		if _, err := m.Cast(s.caster, ability, Parameters{UserInitiated: true}); err != nil {
			s.ClearContinuousCast()
		}
	}
}

// Active returns the live casts in start order.
func (m *Manager) Active() []*Instance { return m.casts }

// Find returns the live cast with the given casting id.
func (m *Manager) Find(castingID uint32) *Instance {
	for _, c := range m.casts {
		if c.id == castingID {
			return c
		}
		if t := c.threshold; t != nil {
			for _, child := range t.children {
				if child.id == castingID {
					return child
				}
			}
		}
	}
	return nil
}

// CastsOf returns the live casts of casterID.
func (m *Manager) CastsOf(casterID ecs.EntityID) []*Instance {
	var out []*Instance
	for _, c := range m.casts {
		if c.caster.ID() == casterID {
			out = append(out, c)
		}
	}
	return out
}

// IsCasting reports whether casterID has a blocking cast other than exclude.
func (m *Manager) IsCasting(casterID ecs.EntityID, exclude *Instance) bool {
	return m.isCasting(casterID, exclude)
}

func (m *Manager) isCasting(casterID ecs.EntityID, exclude *Instance) bool {
	check := func(c *Instance) bool {
		return c != exclude && c.caster.ID() == casterID && c.IsCasting()
	}
	for _, c := range m.casts {
		if check(c) {
			return true
		}
		if t := c.threshold; t != nil {
			for _, child := range t.children {
				if check(child) {
					return true
				}
			}
		}
	}
	for _, c := range m.staged {
		if check(c) {
			return true
		}
	}
	return false
}

// State returns the caster state of a player, creating it on first use.
func (m *Manager) State(caster Caster) *CasterState { return m.stateOf(caster) }

func (m *Manager) stateOf(caster Caster) *CasterState {
	s, ok := m.states[caster.ID()]
	if !ok {
		s = newCasterState(caster)
		m.states[caster.ID()] = s
	}
	return s
}

// Forget drops the caster state of a unit that left the world and finishes
// its casts.
func (m *Manager) Forget(casterID ecs.EntityID) {
	for _, c := range m.CastsOf(casterID) {
		c.Finish()
	}
	delete(m.states, casterID)
}
