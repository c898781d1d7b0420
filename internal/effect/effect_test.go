package effect

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/scripting"
	"github.com/l1jgo/spellengine/internal/spell"
	"github.com/l1jgo/spellengine/internal/world"
	"go.uber.org/zap"
)

const testScript = `
function calc_effect(ctx)
	local amount = ctx.effect.base + ctx.caster.max_hp * ctx.effect.scaling / 100
	return { amount = amount, crit = ctx.effect.id == 199 }
end

function get_buff_effect(id, base)
	if id == 301 then
		return { cc = 4, shield = base }
	end
	return nil
end

function check_prereq(id, u)
	if id == 9 then
		return u.hp < u.max_hp / 2
	end
	if id == 10 then
		return u.buffs[301] == true
	end
	if id == 11 then
		return u.vitals.focus >= 50
	end
	return true
end
`

type fixture struct {
	state  *world.State
	bus    *event.Bus
	m      *spell.Manager
	player *world.UnitRef
	ally   *world.UnitRef
	enemy  *world.UnitRef
}

func newFixture(t *testing.T, abilities ...*data.AbilityInfo) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "effect"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "effect", "rules.lua"), []byte(testScript), 0o644); err != nil {
		t.Fatal(err)
	}
	lua, err := scripting.NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(lua.Close)

	bus := event.NewBus()
	state := world.NewState(ecs.NewWorld(), bus)
	state.SetRelation(1, 2, spell.DispositionHostile)
	rng := rand.New(rand.NewSource(1))

	handlers := spell.NewHandlerTable()
	NewHandlers(state, lua, rng, bus, zap.NewNop()).Register(handlers)

	f := &fixture{state: state, bus: bus}
	f.m = spell.NewManager(spell.Deps{
		Abilities: data.NewAbilityTable(abilities...),
		Prereqs:   NewPrereqs(state, lua),
		World:     state,
		Handlers:  handlers,
		Bus:       bus,
		Log:       zap.NewNop(),
		Rand:      rng,
	})
	f.player = f.spawn("player", world.KindPlayer, 1, 0, 0, 100)
	f.ally = f.spawn("ally", world.KindPlayer, 1, 0, 3, 100)
	f.enemy = f.spawn("enemy", world.KindCreature, 2, 5, 0, 100)
	return f
}

func (f *fixture) spawn(name string, kind world.UnitKind, faction uint32, x, y, hp float64) *world.UnitRef {
	id := f.state.Spawn(world.Body{Name: name, Kind: kind, Faction: faction}, world.Transform{X: x, Y: y}, world.Vitals{MaxHealth: hp})
	u, _ := f.state.Ref(id)
	return u
}

func (f *fixture) cast(t *testing.T, caster *world.UnitRef, ability uint32, target *world.UnitRef) *spell.Instance {
	t.Helper()
	c, err := f.m.Cast(caster, ability, spell.Parameters{UserInitiated: true, PrimaryTargetID: target.ID()})
	if err != nil {
		t.Fatalf("cast %d: %v", ability, err)
	}
	return c
}

func (f *fixture) run(n int) {
	for i := 0; i < n; i++ {
		f.m.Update(50 * time.Millisecond)
		f.m.LateUpdate(50 * time.Millisecond)
	}
}

func collect[T any](bus *event.Bus) *[]T {
	var out []T
	event.Subscribe(bus, func(ev T) { out = append(out, ev) })
	return &out
}

func flush(bus *event.Bus) {
	bus.SwapBuffers()
	bus.DispatchAll()
}

func effectOn(id uint32, typ data.EffectType, base, scaling uint32) data.EffectInfo {
	e := data.EffectInfo{ID: id, Type: typ, TargetFlags: data.EffectTargetPrimary, PhaseFlags: data.AllPhases}
	e.DataBits[0], e.DataBits[1] = base, scaling
	return e
}

func ability(id uint32, effects ...data.EffectInfo) *data.AbilityInfo {
	return &data.AbilityInfo{ID: id, Effects: effects}
}

func damageOf(goes []spell.CastGoEvent, effectID uint32) *spell.DamageDescription {
	for _, g := range goes {
		for _, tg := range g.Targets {
			for _, e := range tg.Effects {
				if e.EffectID == effectID {
					return e.Damage
				}
			}
		}
	}
	return nil
}

func TestDamage(t *testing.T) {
	tests := []struct {
		name         string
		base, scale  uint32
		effectID     uint32
		wantHealth   float64
		wantDealt    uint32
		wantKilled   bool
		wantOverkill uint32
		wantCrit     bool
	}{
		{"flat", 30, 0, 101, 70, 30, false, 0, false},
		{"scaled by caster max health", 10, 20, 102, 70, 30, false, 0, false},
		{"lethal", 150, 0, 103, 0, 100, true, 50, false},
		{"crit flag from script", 5, 0, 199, 95, 5, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ability(1, effectOn(tt.effectID, data.EffectDamage, tt.base, tt.scale)))
			goes := collect[spell.CastGoEvent](f.bus)
			died := collect[event.UnitDied](f.bus)

			f.cast(t, f.player, 1, f.enemy)
			f.run(2)
			flush(f.bus)

			if f.enemy.Health() != tt.wantHealth {
				t.Errorf("health = %v, want %v", f.enemy.Health(), tt.wantHealth)
			}
			d := damageOf(*goes, tt.effectID)
			if d == nil {
				t.Fatal("no damage description reported")
			}
			if d.AdjustedDamage != tt.wantDealt || d.KilledTarget != tt.wantKilled || d.OverkillAmount != tt.wantOverkill {
				t.Errorf("description = %+v", d)
			}
			if (d.CombatResult == CombatCrit) != tt.wantCrit {
				t.Errorf("combat result = %d", d.CombatResult)
			}
			if tt.wantKilled {
				if len(*died) != 1 || (*died)[0].EntityID != f.enemy.ID() || (*died)[0].KillerID != f.player.ID() {
					t.Errorf("died events = %+v", *died)
				}
				if !f.enemy.Dead() {
					t.Error("enemy not marked dead")
				}
			} else if len(*died) != 0 {
				t.Errorf("unexpected death events %+v", *died)
			}
		})
	}
}

func TestBuff_ShieldAndCCLifecycle(t *testing.T) {
	shield := effectOn(301, data.EffectBuff, 30, 0)
	shield.DurationTime = 500 * time.Millisecond
	f := newFixture(t,
		ability(1, shield),
		ability(2, effectOn(101, data.EffectDamage, 50, 0)),
	)

	f.cast(t, f.player, 1, f.enemy)
	f.run(2)
	if !f.enemy.HasBuff(301) || f.enemy.Vital(data.VitalShield) != 30 || f.enemy.CCState() != 4 {
		t.Fatalf("buff not applied: shield %v cc %d", f.enemy.Vital(data.VitalShield), f.enemy.CCState())
	}

	f.cast(t, f.ally, 2, f.enemy)
	f.run(2)
	if f.enemy.Health() != 80 || f.enemy.Vital(data.VitalShield) != 0 {
		t.Errorf("health %v shield %v, want 80 and 0", f.enemy.Health(), f.enemy.Vital(data.VitalShield))
	}

	f.run(12)
	if f.enemy.HasBuff(301) || f.enemy.CCState() != 0 {
		t.Errorf("buff outlived its cast: %+v", f.enemy.Buffs())
	}
}

func TestBuff_MarkerWithoutDefinition(t *testing.T) {
	marker := effectOn(302, data.EffectBuff, 0, 0)
	marker.DurationTime = 200 * time.Millisecond
	f := newFixture(t, ability(1, marker))
	f.cast(t, f.player, 1, f.enemy)
	f.run(2)
	if !f.enemy.HasBuff(302) || f.enemy.CCState() != 0 {
		t.Errorf("marker buff = %+v", f.enemy.Buffs())
	}
}

func TestHeal_ClampsToMissingHealth(t *testing.T) {
	f := newFixture(t, ability(1, effectOn(201, data.EffectHeal, 100, 0)))
	f.ally.ModifyVital(data.VitalHealth, -60)
	goes := collect[spell.CastGoEvent](f.bus)

	f.cast(t, f.player, 1, f.ally)
	f.run(2)
	flush(f.bus)

	if f.ally.Health() != 100 {
		t.Errorf("health = %v, want 100", f.ally.Health())
	}
	d := damageOf(*goes, 201)
	if d == nil || d.DamageType != KindHeal || d.AdjustedDamage != 60 || d.OverkillAmount != 40 {
		t.Errorf("description = %+v", d)
	}
}

func TestKnockback_PushesAwayFromCaster(t *testing.T) {
	f := newFixture(t, ability(1, effectOn(401, data.EffectKnockback, 10, 0)))
	f.cast(t, f.player, 1, f.enemy)
	f.run(2)

	if p := f.enemy.Position(); p.X != 15 || p.Y != 0 {
		t.Errorf("enemy at %+v, want (15, 0)", p)
	}
	if got := f.state.Search(spell.Position{X: 15}, 1, nil); len(got) != 1 || got[0].ID() != f.enemy.ID() {
		t.Errorf("grid not updated: %v", got)
	}
}

func TestPrereqs_Meets(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		id    uint32
		want  bool
	}{
		{"unknown prereq passes", func(*fixture) {}, 1, true},
		{"healthy unit fails low health", func(*fixture) {}, 9, false},
		{"wounded unit passes low health", func(f *fixture) { f.enemy.ModifyVital(data.VitalHealth, -60) }, 9, true},
		{"missing buff", func(*fixture) {}, 10, false},
		{"buff present", func(f *fixture) { f.enemy.AddBuff(world.ActiveBuff{EffectID: 301, ApplicationID: 1}) }, 10, true},
		{"not enough focus", func(*fixture) {}, 11, false},
		{"enough focus", func(f *fixture) { f.enemy.ModifyVital(data.VitalFocus, 50) }, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			if got := f.m.Deps().Prereqs.Meets(f.enemy, tt.id); got != tt.want {
				t.Errorf("Meets(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
