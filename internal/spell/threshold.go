package spell

import (
	"fmt"
	"time"

	"github.com/l1jgo/spellengine/internal/data"
	"go.uber.org/zap"
)

// thresholdState is carried by charge-release and rapid-tap casts. value
// never exceeds max.
type thresholdState struct {
	value     uint32
	max       uint32
	hold      time.Duration
	holdLimit time.Duration
	children  []*Instance
}

func newThresholdState(info *data.AbilityInfo) *thresholdState {
	return &thresholdState{max: uint32(len(info.Thresholds))}
}

// pending is true while more stages remain or a child cast is still alive.
func (t *thresholdState) pending() bool {
	return t.value < t.max || len(t.children) > 0
}

func (t *thresholdState) advance(v uint32) {
	if v > t.max {
		v = t.max
	}
	if v > t.value {
		t.value = v
	}
}

// ThresholdValue returns the current stage counter and its maximum.
func (c *Instance) ThresholdValue() (value, max uint32) {
	if c.threshold == nil {
		return 0, 0
	}
	return c.threshold.value, c.threshold.max
}

// Children returns the live stage casts spawned by this cast.
func (c *Instance) Children() []*Instance {
	if c.threshold == nil {
		return nil
	}
	return c.threshold.children
}

// HasThresholdToCast reports whether stages remain or a child is alive.
func (c *Instance) HasThresholdToCast() bool { return c.hasThresholdWork() }

func (c *Instance) updateThreshold(dt time.Duration) {
	t := c.threshold
	if c.status == StatusExecuting && t.pending() {
		c.status = StatusWaiting
	}
	if c.status == StatusWaiting && c.info.CastMethod == data.CastChargeRelease && t.value < t.max {
		t.hold += dt
		if t.hold >= t.holdLimit {
			if err := c.thresholdCast(); err != nil {
				c.log.Debug("forced release failed", zap.Error(err))
			}
		}
	}

	for _, child := range t.children {
		child.Update(dt)
		child.LateUpdate(dt)
	}
	live := t.children[:0]
	for _, child := range t.children {
		if !child.status.Terminal() {
			live = append(live, child)
		}
	}
	for i := len(live); i < len(t.children); i++ {
		t.children[i] = nil
	}
	t.children = live
}

// thresholdCast handles a release or tap: it re-validates, spawns the child
// cast for the current stage and advances the counter.
func (c *Instance) thresholdCast() error {
	t := c.threshold
	if c.status != StatusWaiting {
		err := fmt.Errorf("threshold cast %d while %s: %w", c.id, c.status, ErrInvalidState)
		c.abort(err)
		return err
	}
	if t.max == 0 {
		err := fmt.Errorf("ability %d has no threshold stages: %w", c.info.ID, ErrMissingStage)
		c.abort(err)
		return err
	}
	if t.value >= t.max {
		return fmt.Errorf("threshold cast %d has no stages left: %w", c.id, ErrInvalidState)
	}

	if result := c.checkCast(true); result != ResultOk {
		// Charge release fires on any failure; rapid tap only tolerates the
		// caster prerequisite.
		if c.info.CastMethod == data.CastRapidTap && result != ResultPrereqCasterCast {
			if c.caster.IsPlayer() {
				c.host.stateOf(c.caster).ClearContinuousCast()
			}
			c.reportResult(result)
			return &CastError{AbilityID: c.info.ID, Result: result}
		}
	}

	child, err := c.newThresholdChild()
	if err != nil {
		c.abort(err)
		return err
	}
	if err := child.Cast(); err != nil {
		c.log.Debug("threshold child rejected", zap.Uint32("child_ability_id", child.info.ID), zap.Error(err))
	}
	t.children = append(t.children, child)

	switch c.info.CastMethod {
	case data.CastChargeRelease:
		c.setCooldown()
		t.value = t.max
		c.status = StatusFinishing
	case data.CastRapidTap:
		t.advance(t.value + 1)
	}
	return nil
}

func (c *Instance) newThresholdChild() (*Instance, error) {
	stage, ok := c.info.StageFor(c.threshold.value)
	if !ok {
		return nil, fmt.Errorf("ability %d stage %d: %w", c.info.ID, c.threshold.value, ErrMissingStage)
	}
	info := c.deps.Abilities.Get(stage.AbilityID)
	if info == nil {
		return nil, fmt.Errorf("ability %d stage %d references %d: %w", c.info.ID, stage.OrderIndex, stage.AbilityID, ErrMissingStage)
	}
	child := newInstance(c.host, c.caster, info, Parameters{
		Parent:          c.info,
		Root:            c.info,
		UserInitiated:   c.params.UserInitiated,
		ThresholdValue:  stage.OrderIndex + 1,
		IsProxy:         c.info.CastMethod == data.CastChargeRelease,
		PrimaryTargetID: c.params.PrimaryTargetID,
	})
	c.log.Debug("threshold child added",
		zap.Uint32("child_casting_id", child.id),
		zap.Uint32("child_ability_id", info.ID))
	return child, nil
}
