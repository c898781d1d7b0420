package spell

import (
	"fmt"
	"testing"
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/data"
)

type fakeUnit struct {
	id      ecs.EntityID
	pos     Position
	yaw     float64
	player  bool
	faction uint32
	health  float64
	max     float64
	cc      uint32
	vitals  map[data.Vital]float64
	world   *fakeWorld
}

func (u *fakeUnit) ID() ecs.EntityID           { return u.id }
func (u *fakeUnit) Position() Position         { return u.pos }
func (u *fakeUnit) Yaw() float64               { return u.yaw }
func (u *fakeUnit) HitRadius() float64         { return 0 }
func (u *fakeUnit) IsPlayer() bool             { return u.player }
func (u *fakeUnit) Faction() uint32            { return u.faction }
func (u *fakeUnit) Health() float64            { return u.health }
func (u *fakeUnit) MaxHealth() float64         { return u.max }
func (u *fakeUnit) CCState() uint32            { return u.cc }
func (u *fakeUnit) Vital(v data.Vital) float64 { return u.vitals[v] }

func (u *fakeUnit) ModifyVital(v data.Vital, delta float64) {
	if u.vitals == nil {
		u.vitals = make(map[data.Vital]float64)
	}
	u.vitals[v] += delta
}

// Factions 1 and 2 are at war; everything else is neutral.
func (u *fakeUnit) DispositionTo(f uint32) Disposition {
	switch {
	case f == u.faction:
		return DispositionFriendly
	case f+u.faction == 3:
		return DispositionHostile
	}
	return DispositionNeutral
}

func (u *fakeUnit) Visible(id ecs.EntityID) (Unit, bool) {
	if u.world == nil {
		return nil, false
	}
	return u.world.Unit(id)
}

type fakeWorld struct {
	units     []*fakeUnit
	next      uint32
	despawned []ecs.EntityID
}

func newFakeWorld() *fakeWorld { return &fakeWorld{next: 1} }

func (w *fakeWorld) add(u *fakeUnit) *fakeUnit {
	u.id = ecs.NewEntityID(w.next, 0)
	w.next++
	u.world = w
	if u.max == 0 {
		u.max, u.health = 100, 100
	}
	w.units = append(w.units, u)
	return u
}

func (w *fakeWorld) Search(origin Position, radius float64, check func(Unit) bool) []Unit {
	var out []Unit
	for _, u := range w.units {
		if origin.Distance(u.pos) <= radius && check(u) {
			out = append(out, u)
		}
	}
	return out
}

func (w *fakeWorld) Unit(id ecs.EntityID) (Unit, bool) {
	for _, u := range w.units {
		if u.id == id {
			return u, true
		}
	}
	return nil, false
}

func (w *fakeWorld) SpawnPositional(creatureID uint32, pos Position, yaw float64) (Unit, error) {
	if creatureID == 0 {
		return nil, fmt.Errorf("no creature")
	}
	return w.add(&fakeUnit{pos: pos, yaw: yaw}), nil
}

func (w *fakeWorld) Despawn(id ecs.EntityID) {
	w.despawned = append(w.despawned, id)
	for i, u := range w.units {
		if u.id == id {
			w.units = append(w.units[:i], w.units[i+1:]...)
			return
		}
	}
}

type fakeAbilities map[uint32]*data.AbilityInfo

func (f fakeAbilities) Get(id uint32) *data.AbilityInfo { return f[id] }

type fakePrereqs struct{ denied map[uint32]bool }

func (p *fakePrereqs) Meets(_ Unit, id uint32) bool { return !p.denied[id] }

type application struct {
	effect uint32
	target ecs.EntityID
	at     time.Duration
	cast   uint32
}

// recorder stands in for the damage and buff handlers.
type recorder struct {
	applied []application
	removed []application
}

func (r *recorder) apply(c *Instance, target Unit, app *EffectApplication) {
	r.applied = append(r.applied, application{effect: app.Effect.ID, target: target.ID(), at: c.Elapsed(), cast: c.CastingID()})
}

func (r *recorder) remove(c *Instance, target Unit, app *EffectApplication) {
	r.removed = append(r.removed, application{effect: app.Effect.ID, target: target.ID(), at: c.Elapsed(), cast: c.CastingID()})
}

func (r *recorder) count(effect uint32) int {
	n := 0
	for _, a := range r.applied {
		if a.effect == effect {
			n++
		}
	}
	return n
}

type harness struct {
	m       *Manager
	world   *fakeWorld
	rec     *recorder
	prereqs *fakePrereqs
	bus     *event.Bus
	player  *fakeUnit
}

func newHarness(t *testing.T, abilities ...*data.AbilityInfo) *harness {
	t.Helper()
	table := fakeAbilities{}
	for _, a := range abilities {
		table[a.ID] = a
	}
	h := &harness{
		world:   newFakeWorld(),
		rec:     &recorder{},
		prereqs: &fakePrereqs{denied: map[uint32]bool{}},
		bus:     event.NewBus(),
	}
	handlers := NewHandlerTable()
	handlers.Register(data.EffectDamage, h.rec.apply, nil)
	handlers.Register(data.EffectBuff, h.rec.apply, h.rec.remove)
	h.m = NewManager(Deps{
		Abilities: table,
		Prereqs:   h.prereqs,
		World:     h.world,
		Handlers:  handlers,
		Bus:       h.bus,
	})
	h.player = h.world.add(&fakeUnit{player: true, faction: 1, vitals: map[data.Vital]float64{data.VitalFocus: 100}})
	return h
}

// run advances the manager n ticks of dt each.
func (h *harness) run(dt time.Duration, n int) {
	for i := 0; i < n; i++ {
		h.m.Update(dt)
		h.m.LateUpdate(dt)
	}
}

func (h *harness) cast(t *testing.T, id uint32) *Instance {
	t.Helper()
	c, err := h.m.Cast(h.player, id, Parameters{UserInitiated: true})
	if err != nil {
		t.Fatalf("cast %d: %v", id, err)
	}
	return c
}

// collect subscribes to T and returns the slice the events land in after
// the bus is swapped and dispatched.
func collect[T any](bus *event.Bus) *[]T {
	var out []T
	event.Subscribe(bus, func(ev T) { out = append(out, ev) })
	return &out
}

func flush(bus *event.Bus) {
	bus.SwapBuffers()
	bus.DispatchAll()
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func buffEffect(id uint32, targets uint32) data.EffectInfo {
	return data.EffectInfo{ID: id, Type: data.EffectBuff, TargetFlags: targets, PhaseFlags: data.AllPhases}
}

func damageEffect(id uint32, targets uint32) data.EffectInfo {
	return data.EffectInfo{ID: id, Type: data.EffectDamage, TargetFlags: targets, PhaseFlags: data.AllPhases}
}
