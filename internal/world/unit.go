package world

import (
	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/spell"
)

// UnitRef is a handle onto a unit's components. It stays cheap to create
// and never caches component values, so it always reads current state.
type UnitRef struct {
	id ecs.EntityID
	s  *State
}

var _ spell.Caster = (*UnitRef)(nil)

func (u *UnitRef) ID() ecs.EntityID { return u.id }

func (u *UnitRef) transform() *Transform {
	if t, ok := u.s.transforms.Get(u.id); ok {
		return t
	}
	return &Transform{}
}

func (u *UnitRef) body() *Body {
	if b, ok := u.s.bodies.Get(u.id); ok {
		return b
	}
	return &Body{}
}

func (u *UnitRef) vitals() *Vitals {
	if v, ok := u.s.vitals.Get(u.id); ok {
		return v
	}
	return &Vitals{}
}

func (u *UnitRef) status() *Status {
	if st, ok := u.s.statuses.Get(u.id); ok {
		return st
	}
	return &Status{}
}

func (u *UnitRef) Position() spell.Position {
	t := u.transform()
	return spell.Position{X: t.X, Y: t.Y, Z: t.Z}
}

func (u *UnitRef) Yaw() float64       { return u.transform().Yaw }
func (u *UnitRef) HitRadius() float64 { return u.body().HitRadius }
func (u *UnitRef) IsPlayer() bool     { return u.body().Kind == KindPlayer }
func (u *UnitRef) Faction() uint32    { return u.body().Faction }
func (u *UnitRef) Name() string       { return u.body().Name }
func (u *UnitRef) Kind() UnitKind     { return u.body().Kind }
func (u *UnitRef) Health() float64    { return u.vitals().Health }
func (u *UnitRef) MaxHealth() float64 { return u.vitals().MaxHealth }
func (u *UnitRef) Dead() bool         { return u.vitals().Dead }
func (u *UnitRef) CCState() uint32    { return u.status().CC() }

func (u *UnitRef) DispositionTo(faction uint32) spell.Disposition {
	return u.s.Disposition(u.Faction(), faction)
}

// Visible resolves a live unit within this unit's sight range.
func (u *UnitRef) Visible(id ecs.EntityID) (spell.Unit, bool) {
	other, ok := u.s.Ref(id)
	if !ok {
		return nil, false
	}
	if id != u.id && u.Position().Distance(other.Position()) > u.body().SightRange {
		return nil, false
	}
	return other, true
}

func (u *UnitRef) Vital(v data.Vital) float64 {
	vt := u.vitals()
	if v == data.VitalHealth {
		return vt.Health
	}
	return vt.Values[v]
}

// ModifyVital adds delta to a vital. Health is clamped to [0, max] and
// secondary vitals never go below zero.
func (u *UnitRef) ModifyVital(v data.Vital, delta float64) {
	vt, ok := u.s.vitals.Get(u.id)
	if !ok {
		return
	}
	if v == data.VitalHealth {
		vt.Health = min(max(vt.Health+delta, 0), vt.MaxHealth)
		vt.Dead = vt.Health == 0
		return
	}
	vt.Values[v] = max(vt.Values[v]+delta, 0)
}

// SetCC replaces the base crowd-control state.
func (u *UnitRef) SetCC(mask uint32) { u.status().BaseCC = mask }

// Buffs returns the live buff applications on the unit.
func (u *UnitRef) Buffs() []ActiveBuff { return u.status().Buffs }

// HasBuff reports whether an application of effectID is on the unit.
func (u *UnitRef) HasBuff(effectID uint32) bool {
	for _, b := range u.status().Buffs {
		if b.EffectID == effectID {
			return true
		}
	}
	return false
}

// AddBuff adds a buff application. A second application of the same effect
// from the same cast replaces the first, so periodic refreshes do not stack.
func (u *UnitRef) AddBuff(b ActiveBuff) {
	st, ok := u.s.statuses.Get(u.id)
	if !ok {
		return
	}
	for i := range st.Buffs {
		old := &st.Buffs[i]
		if old.EffectID == b.EffectID && old.CastingID == b.CastingID {
			u.ModifyVital(data.VitalShield, b.Shield-old.Shield)
			*old = b
			return
		}
	}
	st.Buffs = append(st.Buffs, b)
	u.ModifyVital(data.VitalShield, b.Shield)
}

// RemoveBuff drops the application with the given id and returns it.
func (u *UnitRef) RemoveBuff(applicationID uint32) (ActiveBuff, bool) {
	st, ok := u.s.statuses.Get(u.id)
	if !ok {
		return ActiveBuff{}, false
	}
	for i, b := range st.Buffs {
		if b.ApplicationID == applicationID {
			st.Buffs = append(st.Buffs[:i], st.Buffs[i+1:]...)
			u.ModifyVital(data.VitalShield, -b.Shield)
			return b, true
		}
	}
	return ActiveBuff{}, false
}

// DamageOutcome splits incoming damage into what the shield took and what
// reached health.
type DamageOutcome struct {
	Absorbed float64
	Dealt    float64
	Overkill float64
	Killed   bool
}

// TakeDamage applies amount, shield first. Dead units take nothing.
func (u *UnitRef) TakeDamage(amount float64) DamageOutcome {
	vt, ok := u.s.vitals.Get(u.id)
	if !ok || vt.Dead || amount <= 0 {
		return DamageOutcome{}
	}
	var out DamageOutcome
	if shield := vt.Values[data.VitalShield]; shield > 0 {
		out.Absorbed = min(shield, amount)
		vt.Values[data.VitalShield] = shield - out.Absorbed
		amount -= out.Absorbed
	}
	out.Dealt = min(amount, vt.Health)
	out.Overkill = amount - out.Dealt
	vt.Health -= out.Dealt
	if vt.Health <= 0 {
		vt.Health = 0
		vt.Dead = true
		out.Killed = true
	}
	return out
}

// Heal restores up to amount health and returns what was restored.
func (u *UnitRef) Heal(amount float64) float64 {
	vt, ok := u.s.vitals.Get(u.id)
	if !ok || vt.Dead || amount <= 0 {
		return 0
	}
	healed := min(amount, vt.MaxHealth-vt.Health)
	vt.Health += healed
	return healed
}
