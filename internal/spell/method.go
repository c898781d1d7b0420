package spell

import (
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/data"
	"go.uber.org/zap"
)

// castMethod is the timing strategy of a cast. install schedules the
// topology once validation passed; tick runs every Update after the
// scheduler.
type castMethod struct {
	name      string
	threshold bool
	install   func(c *Instance) error
	isCasting func(s Status) bool
	tick      func(c *Instance, dt time.Duration)
}

var methods [data.CastMethodCount]*castMethod

func init() {
	normal := &castMethod{name: "normal", install: installNormal, isCasting: casting}
	channeled := &castMethod{name: "channeled", install: installChanneled, isCasting: castingOrExecuting}

	methods[data.CastNormal] = normal
	methods[data.CastChanneled] = channeled
	methods[data.CastChanneledField] = &castMethod{name: "channeled_field", install: installChanneled, isCasting: castingOrExecuting}
	methods[data.CastMultiphase] = &castMethod{name: "multiphase", install: installMultiphase, isCasting: castingOrExecuting}
	methods[data.CastChargeRelease] = &castMethod{
		name:      "charge_release",
		threshold: true,
		install:   installChargeRelease,
		isCasting: func(s Status) bool {
			return s == StatusCasting || s == StatusExecuting || s == StatusWaiting
		},
	}
	methods[data.CastRapidTap] = &castMethod{name: "rapid_tap", threshold: true, install: installRapidTap, isCasting: casting}
	methods[data.CastAura] = &castMethod{name: "aura", install: installAura, isCasting: casting, tick: tickAura}
	methods[data.CastClientSideInteraction] = &castMethod{name: "client_side_interaction", install: installClientInteraction, isCasting: casting}

	for i, m := range methods {
		if m == nil {
			methods[i] = normal
		}
	}
}

// methodFor picks the strategy for an ability. A cast started with a client
// interaction always uses the client-gated strategy.
func methodFor(m data.CastMethod, clientInteraction bool) *castMethod {
	if clientInteraction {
		return methods[data.CastClientSideInteraction]
	}
	if int(m) >= len(methods) {
		return methods[data.CastNormal]
	}
	return methods[m]
}

func casting(s Status) bool { return s == StatusCasting }

func castingOrExecuting(s Status) bool { return s == StatusCasting || s == StatusExecuting }

func installNormal(c *Instance) error {
	c.events.Enqueue(c.castTime(), func() { c.execute(true) })
	return nil
}

func installChanneled(c *Instance) error {
	info := c.info
	c.events.Enqueue(info.ChannelInitialDelay, func() {
		if c.checkResources() != ResultOk {
			c.cancel(ResultNotEnoughResource)
			return
		}
		c.execute(true)
	})
	c.events.Enqueue(info.ChannelMaxTime, c.Finish)

	if info.ChannelPulseTime <= 0 {
		return nil
	}
	pulses := int(info.ChannelMaxTime / info.ChannelPulseTime)
	for i := 1; i <= pulses; i++ {
		c.events.Enqueue(info.ChannelInitialDelay+info.ChannelPulseTime*time.Duration(i), func() {
			if c.checkResources() != ResultOk {
				c.cancel(ResultNotEnoughResource)
				return
			}
			clear(c.triggerCount)
			c.execute(true)
		})
	}
	return nil
}

func installMultiphase(c *Instance) error {
	var at time.Duration
	last := len(c.info.Phases) - 1
	for i, ph := range c.info.Phases {
		at += ph.PhaseDelay
		index := ph.OrderIndex
		final := i == last
		c.events.Enqueue(at, func() {
			c.phase = index
			clear(c.triggerCount)
			c.execute(true)
			if final && !c.status.Terminal() {
				c.status = StatusFinishing
			}
		})
	}
	if last < 0 {
		c.events.Enqueue(c.castTime(), func() { c.execute(true) })
	}
	return nil
}

func installChargeRelease(c *Instance) error {
	info := c.info
	if c.params.Parent == nil {
		c.threshold.holdLimit = info.ThresholdTime
		var next time.Duration
		for _, stage := range info.Thresholds {
			next += stage.ThresholdDuration
			if stage.OrderIndex == 0 {
				continue
			}
			value := stage.OrderIndex
			c.events.Enqueue(info.CastTime+next, func() {
				if c.threshold.value >= c.threshold.max {
					return
				}
				c.threshold.advance(value)
				c.emitThresholdUpdate()
			})
		}
	}
	c.events.Enqueue(info.CastTime, func() { c.execute(true) })
	return nil
}

func installRapidTap(c *Instance) error {
	info := c.info
	if c.params.Parent == nil {
		c.events.Enqueue(info.CastTime+info.ThresholdTime, c.Finish)
	}
	c.events.Enqueue(info.CastTime, func() { c.execute(true) })
	return nil
}

func installAura(c *Instance) error {
	info := c.info
	c.events.Enqueue(c.castTime(), func() {
		first := !c.executed
		c.execute(first)
	})
	for i := range info.Effects {
		if e := &info.Effects[i]; e.Periodic() {
			c.setRetrigger(e.ID, 0)
		}
	}
	if info.Duration > 0 {
		c.events.Enqueue(info.Duration, c.Finish)
	}
	if info.PositionalCreatureID > 0 && c.params.PositionalUnitID == 0 {
		u, err := c.deps.World.SpawnPositional(info.PositionalCreatureID, c.caster.Position(), c.caster.Yaw())
		if err != nil {
			return err
		}
		c.positional = u.ID()
		c.params.PositionalUnitID = u.ID()
	}
	return nil
}

// tickAura reselects targets every aura interval while the cast executes and
// fires periodic effects whose retrigger timer ran out.
func tickAura(c *Instance, dt time.Duration) {
	if c.status != StatusExecuting {
		return
	}
	c.auraTimer += dt
	if c.auraTimer >= c.deps.AuraInterval {
		c.auraTimer = 0
		c.execute(false)
		if c.status != StatusExecuting {
			return
		}
		c.dropExpired()
	}

	for _, id := range c.retriggerOrder {
		left := c.retrigger[id] - dt
		c.retrigger[id] = left
		if left > 0 {
			continue
		}
		e, ok := c.info.Effect(id)
		if !ok {
			continue
		}
		if err := c.executeEffect(e); err != nil {
			c.abort(err)
			return
		}
		c.handleProxies()
	}
}

// dropExpired tears down and forgets every expired target.
func (c *Instance) dropExpired() {
	var removed []ecs.EntityID
	kept := c.targets[:0]
	for _, t := range c.targets {
		if t.State != SelectionExpired {
			kept = append(kept, t)
			continue
		}
		c.removeEffects(t)
		removed = append(removed, t.Unit.ID())
	}
	c.targets = kept
	if len(removed) > 0 {
		c.log.Debug("aura targets expired", zap.Int("count", len(removed)))
		c.emitBuffsRemoved(removed)
	}
}

func installClientInteraction(c *Instance) error {
	if c.info.CastMethod != data.CastClientSideInteraction {
		c.events.Enqueue(c.castTime(), func() {
			if err := c.SucceedClientInteraction(); err != nil {
				c.abort(err)
			}
		})
	}
	return nil
}
