package effect

import (
	"github.com/l1jgo/spellengine/internal/data"
	"github.com/l1jgo/spellengine/internal/scripting"
	"github.com/l1jgo/spellengine/internal/spell"
	"github.com/l1jgo/spellengine/internal/world"
)

var prereqVitals = []data.Vital{data.VitalFocus, data.VitalEndurance, data.VitalShield}

// Prereqs answers prerequisite checks with the Lua check_prereq rules,
// evaluated against live world state.
type Prereqs struct {
	world *world.State
	lua   *scripting.Engine
}

var _ spell.Prerequisites = (*Prereqs)(nil)

func NewPrereqs(w *world.State, lua *scripting.Engine) *Prereqs {
	return &Prereqs{world: w, lua: lua}
}

func (p *Prereqs) Meets(subject spell.Unit, id uint32) bool {
	ctx := scripting.PrereqContext{
		PrereqID:  id,
		IsPlayer:  subject.IsPlayer(),
		Health:    subject.Health(),
		MaxHealth: subject.MaxHealth(),
	}
	if ref, ok := p.world.Ref(subject.ID()); ok {
		ctx.CC = ref.CCState()
		for _, b := range ref.Buffs() {
			ctx.Buffs = append(ctx.Buffs, b.EffectID)
		}
		ctx.Vitals = make(map[string]float64, len(prereqVitals))
		for _, v := range prereqVitals {
			ctx.Vitals[v.String()] = ref.Vital(v)
		}
	}
	return p.lua.CheckPrereq(ctx)
}
