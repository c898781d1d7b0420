package spell

import (
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/data"
)

// Notifications for the caster-side session layer. They travel on the
// double-buffered event bus, so subscribers see them one tick later.

// TelegraphPosition places a telegraph for observers.
type TelegraphPosition struct {
	TelegraphID    uint32
	AttachedUnitID ecs.EntityID
	Position       Position
	Yaw            float64
}

type CastStartEvent struct {
	CastingID       uint32
	CasterID        ecs.EntityID
	PrimaryTargetID ecs.EntityID
	AbilityID       uint32
	RootAbilityID   uint32
	ParentAbilityID uint32
	Position        Position
	Yaw             float64
	UserInitiated   bool
	Telegraphs      []TelegraphPosition
}

// CastResultEvent reports a rejected or interrupted cast to the caster only.
type CastResultEvent struct {
	CasterID  ecs.EntityID
	AbilityID uint32
	Result    CastResult
}

type CastCancelEvent struct {
	CasterID  ecs.EntityID
	CastingID uint32
	Result    CastResult
}

// GoEffect is one effect application inside a CastGoEvent.
type GoEffect struct {
	EffectID      uint32
	ApplicationID uint32
	Delay         time.Duration
	TimeRemaining time.Duration // -1 when the cast has no duration
	Damage        *DamageDescription
}

type GoTarget struct {
	UnitID  ecs.EntityID
	Index   uint8
	Flags   TargetFlags
	Effects []GoEffect
}

// CastGoEvent is sent after every execution pass.
type CastGoEvent struct {
	CastingID  uint32
	CasterID   ecs.EntityID
	AbilityID  uint32
	Phase      uint8
	Position   Position
	Targets    []GoTarget
	Telegraphs []TelegraphPosition
}

type CastFinishEvent struct {
	CastingID uint32
	CasterID  ecs.EntityID
	AbilityID uint32
}

type ThresholdStartEvent struct {
	CasterID        ecs.EntityID
	CastingID       uint32
	AbilityID       uint32
	RootAbilityID   uint32
	ParentAbilityID uint32
}

type ThresholdUpdateEvent struct {
	CasterID  ecs.EntityID
	AbilityID uint32
	Value     uint32
}

type ThresholdClearEvent struct {
	CasterID  ecs.EntityID
	AbilityID uint32
}

type BuffsRemovedEvent struct {
	CastingID uint32
	CasterID  ecs.EntityID
	Targets   []ecs.EntityID
}

type ClientInteractionStartEvent struct {
	CasterID        ecs.EntityID
	CastingID       uint32
	ClientUniqueID  uint32
	PrimaryTargetID ecs.EntityID
}

func (c *Instance) telegraphPositions() []TelegraphPosition {
	if len(c.telegraphs) == 0 {
		return nil
	}
	out := make([]TelegraphPosition, 0, len(c.telegraphs))
	for _, t := range c.telegraphs {
		out = append(out, TelegraphPosition{
			TelegraphID:    t.Info.ID,
			AttachedUnitID: c.caster.ID(),
			Position:       t.Origin,
			Yaw:            t.Yaw,
		})
	}
	return out
}

func (c *Instance) primaryTargetID() ecs.EntityID {
	if c.params.PrimaryTargetID != 0 {
		return c.params.PrimaryTargetID
	}
	return c.caster.ID()
}

func (c *Instance) emitStart() {
	event.Emit(c.deps.Bus, CastStartEvent{
		CastingID:       c.id,
		CasterID:        c.caster.ID(),
		PrimaryTargetID: c.primaryTargetID(),
		AbilityID:       c.info.ID,
		RootAbilityID:   abilityID(c.params.Root),
		ParentAbilityID: abilityID(c.params.Parent),
		Position:        c.caster.Position(),
		Yaw:             c.caster.Yaw(),
		UserInitiated:   c.params.UserInitiated,
		Telegraphs:      c.telegraphPositions(),
	})
}

func (c *Instance) reportResult(result CastResult) {
	if result == ResultOk {
		return
	}
	c.log.Debug("cast result", zapResult(result))
	if !c.caster.IsPlayer() {
		return
	}
	event.Emit(c.deps.Bus, CastResultEvent{
		CasterID:  c.caster.ID(),
		AbilityID: c.info.ID,
		Result:    result,
	})
}

func (c *Instance) emitGo() {
	remaining := time.Duration(-1)
	if c.duration > 0 {
		remaining = c.duration
	}
	ev := CastGoEvent{
		CastingID:  c.id,
		CasterID:   c.caster.ID(),
		AbilityID:  c.info.ID,
		Phase:      c.phase,
		Position:   c.caster.Position(),
		Telegraphs: c.telegraphPositions(),
	}
	var idx uint8
	for _, t := range c.targets {
		if len(t.Effects) == 0 {
			continue
		}
		gt := GoTarget{UnitID: t.Unit.ID(), Index: idx, Flags: t.Flags}
		idx++
		for _, app := range t.Effects {
			if app.Effect.Type == data.EffectProxy {
				continue
			}
			gt.Effects = append(gt.Effects, GoEffect{
				EffectID:      app.Effect.ID,
				ApplicationID: app.ID,
				Delay:         app.Effect.DelayTime,
				TimeRemaining: remaining,
				Damage:        app.Damage,
			})
		}
		ev.Targets = append(ev.Targets, gt)
	}
	event.Emit(c.deps.Bus, ev)
}

func (c *Instance) emitFinish() {
	event.Emit(c.deps.Bus, CastFinishEvent{
		CastingID: c.id,
		CasterID:  c.caster.ID(),
		AbilityID: c.info.ID,
	})
}

func (c *Instance) emitThresholdStart() {
	if !c.caster.IsPlayer() {
		return
	}
	event.Emit(c.deps.Bus, ThresholdStartEvent{
		CasterID:        c.caster.ID(),
		CastingID:       c.id,
		AbilityID:       c.info.ID,
		RootAbilityID:   abilityID(c.params.Root),
		ParentAbilityID: abilityID(c.params.Parent),
	})
}

func (c *Instance) emitThresholdUpdate() {
	if !c.caster.IsPlayer() {
		return
	}
	ev := ThresholdUpdateEvent{CasterID: c.caster.ID(), AbilityID: c.info.ID}
	if c.params.Parent != nil {
		ev.AbilityID = c.params.Parent.ID
	}
	switch {
	case c.params.ThresholdValue > 0:
		ev.Value = c.params.ThresholdValue
	case c.threshold != nil:
		ev.Value = c.threshold.value
	}
	event.Emit(c.deps.Bus, ev)
}

func (c *Instance) emitThresholdClear() {
	if !c.caster.IsPlayer() {
		return
	}
	event.Emit(c.deps.Bus, ThresholdClearEvent{CasterID: c.caster.ID(), AbilityID: c.info.ID})
}

func (c *Instance) emitBuffsRemoved(targets []ecs.EntityID) {
	if len(targets) == 0 {
		return
	}
	event.Emit(c.deps.Bus, BuffsRemovedEvent{
		CastingID: c.id,
		CasterID:  c.caster.ID(),
		Targets:   targets,
	})
}

func (c *Instance) emitCancel(result CastResult) {
	event.Emit(c.deps.Bus, CastCancelEvent{
		CasterID:  c.caster.ID(),
		CastingID: c.id,
		Result:    result,
	})
}
