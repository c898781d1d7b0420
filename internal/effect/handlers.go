package effect

import (
	"math"
	"math/rand"

	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/scripting"
	"github.com/l1jgo/spellengine/internal/spell"
	"github.com/l1jgo/spellengine/internal/world"
	"go.uber.org/zap"
)

// Damage description kinds carried in DamageDescription.DamageType.
const (
	KindDamage uint8 = iota
	KindHeal
)

// Combat results carried in DamageDescription.CombatResult.
const (
	CombatHit uint8 = iota
	CombatCrit
)

// Handlers applies the demo effect types to world units. Magnitudes come
// from the Lua calc_effect hook.
type Handlers struct {
	world *world.State
	lua   *scripting.Engine
	rand  *rand.Rand
	bus   *event.Bus
	log   *zap.Logger
}

func NewHandlers(w *world.State, lua *scripting.Engine, rng *rand.Rand, bus *event.Bus, log *zap.Logger) *Handlers {
	return &Handlers{world: w, lua: lua, rand: rng, bus: bus, log: log}
}

// Register installs every handler into t.
func (h *Handlers) Register(t *spell.HandlerTable) {
	t.Register(data.EffectDamage, h.damage, nil)
	t.Register(data.EffectHeal, h.heal, nil)
	t.Register(data.EffectBuff, h.applyBuff, h.removeBuff)
	t.Register(data.EffectKnockback, h.knockback, nil)
	t.Register(data.EffectActivate, h.activate, nil)
}

func (h *Handlers) calc(c *spell.Instance, target spell.Unit, e *data.EffectInfo) scripting.EffectResult {
	caster := c.Caster()
	return h.lua.CalcEffect(scripting.EffectContext{
		AbilityID:       c.Ability().ID,
		EffectID:        e.ID,
		EffectType:      e.Type.String(),
		Base:            float64(e.DataBits[0]),
		Scaling:         float64(e.DataBits[1]),
		Periodic:        e.Periodic(),
		Roll:            h.rand.Float64(),
		CasterIsPlayer:  caster.IsPlayer(),
		CasterHealth:    caster.Health(),
		CasterMaxHealth: caster.MaxHealth(),
		CasterFocus:     caster.Vital(data.VitalFocus),
		TargetIsPlayer:  target.IsPlayer(),
		TargetHealth:    target.Health(),
		TargetMaxHealth: target.MaxHealth(),
		Distance:        caster.Position().Distance(target.Position()),
	})
}

func (h *Handlers) damage(c *spell.Instance, target spell.Unit, app *spell.EffectApplication) {
	ref, ok := h.world.Ref(target.ID())
	if !ok {
		return
	}
	res := h.calc(c, target, app.Effect)
	out := ref.TakeDamage(res.Amount)

	desc := &spell.DamageDescription{
		RawDamage:          app.Effect.DataBits[0],
		RawScaledDamage:    uint32(math.Round(res.Amount)),
		ShieldAbsorbAmount: uint32(math.Round(out.Absorbed)),
		AdjustedDamage:     uint32(math.Round(out.Dealt)),
		OverkillAmount:     uint32(math.Round(out.Overkill)),
		KilledTarget:       out.Killed,
		DamageType:         KindDamage,
	}
	if res.Crit {
		desc.CombatResult = CombatCrit
	}
	app.Damage = desc

	if out.Killed {
		event.Emit(h.bus, event.UnitDied{EntityID: target.ID(), KillerID: c.Caster().ID()})
		h.log.Debug("unit killed",
			zap.Stringer("unit", target.ID()),
			zap.Uint32("ability_id", c.Ability().ID))
	}
}

func (h *Handlers) heal(c *spell.Instance, target spell.Unit, app *spell.EffectApplication) {
	ref, ok := h.world.Ref(target.ID())
	if !ok {
		return
	}
	res := h.calc(c, target, app.Effect)
	healed := ref.Heal(res.Amount)
	app.Damage = &spell.DamageDescription{
		RawDamage:       app.Effect.DataBits[0],
		RawScaledDamage: uint32(math.Round(res.Amount)),
		AdjustedDamage:  uint32(math.Round(healed)),
		OverkillAmount:  uint32(math.Round(res.Amount - healed)),
		DamageType:      KindHeal,
	}
	if res.Crit {
		app.Damage.CombatResult = CombatCrit
	}
}

func (h *Handlers) applyBuff(c *spell.Instance, target spell.Unit, app *spell.EffectApplication) {
	ref, ok := h.world.Ref(target.ID())
	if !ok {
		return
	}
	b := world.ActiveBuff{
		EffectID:      app.Effect.ID,
		ApplicationID: app.ID,
		CastingID:     c.CastingID(),
		SourceID:      c.Caster().ID(),
	}
	if def := h.lua.GetBuffEffect(app.Effect.ID, float64(app.Effect.DataBits[0])); def != nil {
		b.CCMask = def.CCMask
		b.Shield = def.Shield
	}
	ref.AddBuff(b)
}

func (h *Handlers) removeBuff(c *spell.Instance, target spell.Unit, app *spell.EffectApplication) {
	ref, ok := h.world.Ref(target.ID())
	if !ok {
		return
	}
	ref.RemoveBuff(app.ID)
}

// knockback pushes the target DataBits[0] units straight away from the
// caster, or along the caster's facing when they share a spot.
func (h *Handlers) knockback(c *spell.Instance, target spell.Unit, app *spell.EffectApplication) {
	dist := float64(app.Effect.DataBits[0])
	if dist == 0 || target.ID() == c.Caster().ID() {
		return
	}
	from, to := c.Caster().Position(), target.Position()
	dx, dy := to.X-from.X, to.Y-from.Y
	if l := math.Hypot(dx, dy); l > 1e-9 {
		dx, dy = dx/l, dy/l
	} else {
		dx, dy = math.Cos(c.Caster().Yaw()), math.Sin(c.Caster().Yaw())
	}
	if err := h.world.Displace(target.ID(), to.X+dx*dist, to.Y+dy*dist); err != nil {
		h.log.Debug("knockback skipped", zap.Error(err))
	}
}

// activate marks a client-confirmed interaction; the cast pipeline itself
// carries the outcome.
func (h *Handlers) activate(c *spell.Instance, target spell.Unit, app *spell.EffectApplication) {
	h.log.Debug("interaction activated",
		zap.Uint32("casting_id", c.CastingID()),
		zap.Stringer("target", target.ID()))
}
