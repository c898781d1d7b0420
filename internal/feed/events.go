package feed

import (
	"encoding/json"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/effect"
	"github.com/l1jgo/spellengine/internal/spell"
	"go.uber.org/zap"
)

// Message is the JSON envelope sent to observers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type castData struct {
	CastingID uint32 `json:"casting_id,omitempty"`
	Caster    string `json:"caster"`
	AbilityID uint32 `json:"ability_id"`
	Result    string `json:"result,omitempty"`
}

type effectData struct {
	Target   string `json:"target"`
	EffectID uint32 `json:"effect_id"`
	Amount   uint32 `json:"amount,omitempty"`
	Absorbed uint32 `json:"absorbed,omitempty"`
	Killed   bool   `json:"killed,omitempty"`
	Crit     bool   `json:"crit,omitempty"`
	Heal     bool   `json:"heal,omitempty"`
}

type goData struct {
	castData
	Phase   uint8        `json:"phase"`
	Effects []effectData `json:"effects"`
}

type thresholdData struct {
	Caster    string `json:"caster"`
	AbilityID uint32 `json:"ability_id"`
	Value     uint32 `json:"value"`
}

// Namer turns an entity id into a display name.
type Namer func(ecs.EntityID) string

// Subscribe forwards cast notifications from bus to the hub as JSON.
func Subscribe(bus *event.Bus, h *Hub, name Namer) {
	publish := func(typ string, data any) {
		raw, err := json.Marshal(Message{Type: typ, Data: data})
		if err != nil {
			h.log.Error("feed encode failed", zap.String("type", typ), zap.Error(err))
			return
		}
		h.Publish(raw)
	}

	event.Subscribe(bus, func(ev spell.CastStartEvent) {
		publish("cast_start", castData{CastingID: ev.CastingID, Caster: name(ev.CasterID), AbilityID: ev.AbilityID})
	})
	event.Subscribe(bus, func(ev spell.CastResultEvent) {
		publish("cast_result", castData{Caster: name(ev.CasterID), AbilityID: ev.AbilityID, Result: ev.Result.String()})
	})
	event.Subscribe(bus, func(ev spell.CastCancelEvent) {
		publish("cast_cancel", castData{CastingID: ev.CastingID, Caster: name(ev.CasterID), Result: ev.Result.String()})
	})
	event.Subscribe(bus, func(ev spell.CastFinishEvent) {
		publish("cast_finish", castData{CastingID: ev.CastingID, Caster: name(ev.CasterID), AbilityID: ev.AbilityID})
	})
	event.Subscribe(bus, func(ev spell.CastGoEvent) {
		d := goData{
			castData: castData{CastingID: ev.CastingID, Caster: name(ev.CasterID), AbilityID: ev.AbilityID},
			Phase:    ev.Phase,
			Effects:  []effectData{},
		}
		for _, tg := range ev.Targets {
			for _, e := range tg.Effects {
				ed := effectData{Target: name(tg.UnitID), EffectID: e.EffectID}
				if dmg := e.Damage; dmg != nil {
					ed.Amount = dmg.AdjustedDamage
					ed.Absorbed = dmg.ShieldAbsorbAmount
					ed.Killed = dmg.KilledTarget
					ed.Crit = dmg.CombatResult == effect.CombatCrit
					ed.Heal = dmg.DamageType == effect.KindHeal
				}
				d.Effects = append(d.Effects, ed)
			}
		}
		publish("cast_go", d)
	})
	event.Subscribe(bus, func(ev spell.ThresholdUpdateEvent) {
		publish("threshold", thresholdData{Caster: name(ev.CasterID), AbilityID: ev.AbilityID, Value: ev.Value})
	})
	event.Subscribe(bus, func(ev event.UnitDied) {
		publish("unit_died", map[string]string{"unit": name(ev.EntityID), "killer": name(ev.KillerID)})
	})
}
