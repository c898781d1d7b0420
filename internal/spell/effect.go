package spell

import (
	"fmt"
	"time"

	"github.com/l1jgo/spellengine/internal/data"
	"go.uber.org/zap"
)

// noPhase is the phase index of casts that are not inside a multiphase step.
const noPhase uint8 = 255

// phaseMatches tests a phase mask against the current phase. Masks 0, 1 and
// all-ones match every phase, as does a cast with no current phase.
func (c *Instance) phaseMatches(mask uint32) bool {
	if c.info.CastMethod != data.CastMultiphase || c.phase == noPhase || c.phase >= 32 {
		return true
	}
	if mask == 0 || mask == 1 || mask == data.AllPhases {
		return true
	}
	return mask&(1<<c.phase) != 0
}

// executeEffects runs the effect pass over the current targets.
func (c *Instance) executeEffects() error {
	if !anyNew(c.targets) {
		return nil
	}
	for i := range c.info.Effects {
		e := &c.info.Effects[i]
		if c.caster.IsPlayer() && e.PrereqCasterApply > 0 && !c.deps.Prereqs.Meets(c.caster, e.PrereqCasterApply) {
			continue
		}
		if !c.phaseMatches(e.PhaseFlags) {
			continue
		}
		if e.Periodic() && c.persistent() {
			if left, ok := c.retrigger[e.ID]; ok && left > 0 {
				continue
			}
		}
		if err := c.executeEffect(e); err != nil {
			return err
		}
	}
	return nil
}

// executeEffect applies one effect to every eligible target.
func (c *Instance) executeEffect(e *data.EffectInfo) error {
	apply, ok := c.deps.Handlers.Apply(e.Type)
	if !ok {
		c.log.Warn("unhandled spell effect",
			zap.Uint32("effect_id", e.ID),
			zap.Stringer("effect_type", e.Type))
		return nil
	}

	appID := c.deps.IDs.NextEffectID()
	mask := TargetFlags(e.TargetFlags)
	for _, t := range c.targets {
		if t.Flags&mask == 0 {
			continue
		}
		switch t.State {
		case SelectionNew:
		case SelectionExisting:
			if !e.Periodic() {
				continue
			}
		default:
			continue
		}
		if !c.canApply(e, t) {
			continue
		}

		app := &EffectApplication{Effect: e, ID: appID}
		t.attach(app, c.persistent())
		if err := c.invoke(apply, t.Unit, app); err != nil {
			return err
		}
		c.triggerCount[e.ID]++
	}

	if e.DurationTime > 0 {
		c.hold(e.DurationTime)
		if e.DurationTime > c.duration {
			c.duration = e.DurationTime
		}
	}
	if e.DurationTime == 0 && e.Flags&data.EffectFlagCancelOnly != 0 {
		c.params.ForceCancelOnly = true
	}
	if e.Periodic() {
		c.setRetrigger(e.ID, e.TickTime)
	}
	return nil
}

// attach records app on the target. Persistent casts keep a single
// application per effect so periodic re-application replaces the old one.
func (t *TargetInfo) attach(app *EffectApplication, persistent bool) {
	if persistent {
		for i, old := range t.Effects {
			if old.Effect.ID == app.Effect.ID {
				t.Effects[i] = app
				return
			}
		}
	}
	t.Effects = append(t.Effects, app)
}

// canApply runs the per-target apply prerequisite. Only players are checked.
func (c *Instance) canApply(e *data.EffectInfo, t *TargetInfo) bool {
	if !t.Unit.IsPlayer() {
		return true
	}
	if t.Flags&TargetCaster != 0 {
		if e.PrereqCasterApply > 0 && !c.deps.Prereqs.Meets(t.Unit, e.PrereqCasterApply) {
			return false
		}
		return true
	}
	if e.PrereqTargetApply > 0 {
		return c.deps.Prereqs.Meets(t.Unit, e.PrereqTargetApply)
	}
	return true
}

// invoke calls a handler and turns a panic into ErrHandlerFault.
func (c *Instance) invoke(h EffectHandler, target Unit, app *EffectApplication) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect %d (%s) on %s: %v: %w", app.Effect.ID, app.Effect.Type, target.ID(), r, ErrHandlerFault)
		}
	}()
	h(c, target, app)
	return nil
}

// removeEffects tears down every application recorded on t.
func (c *Instance) removeEffects(t *TargetInfo) {
	for _, app := range t.Effects {
		remove, ok := c.deps.Handlers.Remove(app.Effect.Type)
		if !ok {
			continue
		}
		if err := c.invoke(remove, t.Unit, app); err != nil {
			c.log.Error("effect removal failed", zap.Error(err))
		}
	}
	t.Effects = nil
}

// hold keeps the cast alive until d from now by parking an empty event.
func (c *Instance) hold(d time.Duration) {
	due := c.events.Now() + d
	c.holds = append(c.holds, due)
	c.events.EnqueueAt(due, func() {})
}

func (c *Instance) setRetrigger(effectID uint32, d time.Duration) {
	if _, ok := c.retrigger[effectID]; !ok {
		c.retriggerOrder = append(c.retriggerOrder, effectID)
	}
	c.retrigger[effectID] = d
}
