package spell

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/core/event"
	"github.com/l1jgo/spellengine/internal/data"
	"go.uber.org/zap"
)

// Deps is everything a cast needs from the outside world. One Deps is shared
// by every cast of a Manager.
type Deps struct {
	Abilities Abilities
	Prereqs   Prerequisites
	World     World
	Handlers  *HandlerTable
	IDs       *IDAllocator
	Bus       *event.Bus
	Log       *zap.Logger
	Rand      *rand.Rand

	// AuraInterval is how often a persistent cast reselects its targets.
	AuraInterval time.Duration
}

// ClientInteraction gates a cast on a success or failure signal from the
// client, e.g. clicking an object in the world.
type ClientInteraction struct {
	ClientUniqueID uint32
	OnSuccess      func(*Parameters)
	OnFail         func()
}

// Parameters is the mutable bundle a cast is started with.
type Parameters struct {
	PrimaryTargetID  ecs.EntityID
	PositionalUnitID ecs.EntityID
	UserInitiated    bool
	IsProxy          bool
	ForceCancelOnly  bool

	CastTimeOverride    time.Duration
	HasCastTimeOverride bool
	CooldownOverride    time.Duration
	ThresholdValue      uint32

	Parent *data.AbilityInfo
	Root   *data.AbilityInfo

	ClientInteraction *ClientInteraction
	CompleteAction    func(*Parameters)
}

// Instance is one cast of one ability. All methods must be called from the
// tick goroutine.
type Instance struct {
	id     uint32
	caster Caster
	info   *data.AbilityInfo
	params Parameters
	method *castMethod
	deps   *Deps
	host   *Manager
	log    *zap.Logger

	status   Status
	phase    uint8
	duration time.Duration
	events   *Scheduler

	targets    []*TargetInfo
	telegraphs []*Telegraph
	proxies    []*Proxy
	dispatched []proxyRecord

	triggerCount   map[uint32]uint32
	retrigger      map[uint32]time.Duration
	retriggerOrder []uint32
	holds          []time.Duration

	threshold  *thresholdState
	auraTimer  time.Duration
	positional ecs.EntityID
	executed   bool
}

func newInstance(m *Manager, caster Caster, info *data.AbilityInfo, params Parameters) *Instance {
	return buildInstance(m, m.deps.IDs.NextCastingID(), caster, info, params)
}

func buildInstance(m *Manager, id uint32, caster Caster, info *data.AbilityInfo, params Parameters) *Instance {
	if params.Root == nil {
		params.Root = info
	}
	// client-gated abilities always wait for a signal, even without callbacks
	if info.CastMethod == data.CastClientSideInteraction && params.ClientInteraction == nil {
		params.ClientInteraction = &ClientInteraction{}
	}
	c := &Instance{
		id:           id,
		caster:       caster,
		info:         info,
		params:       params,
		deps:         m.deps,
		host:         m,
		phase:        noPhase,
		events:       NewScheduler(),
		triggerCount: make(map[uint32]uint32),
		retrigger:    make(map[uint32]time.Duration),
	}
	c.method = methodFor(info.CastMethod, params.ClientInteraction != nil)
	if c.method.threshold {
		c.threshold = newThresholdState(info)
	}
	c.log = m.deps.Log.With(
		zap.Uint32("casting_id", c.id),
		zap.Uint32("ability_id", info.ID),
		zap.Stringer("caster", caster.ID()),
	)
	return c
}

func abilityID(info *data.AbilityInfo) uint32 {
	if info == nil {
		return 0
	}
	return info.ID
}

func zapResult(r CastResult) zap.Field { return zap.Stringer("result", r) }

func (c *Instance) CastingID() uint32             { return c.id }
func (c *Instance) Caster() Caster                { return c.caster }
func (c *Instance) Ability() *data.AbilityInfo    { return c.info }
func (c *Instance) Parameters() *Parameters       { return &c.params }
func (c *Instance) Status() Status                { return c.status }
func (c *Instance) Phase() uint8                  { return c.phase }
func (c *Instance) Duration() time.Duration       { return c.duration }
func (c *Instance) Elapsed() time.Duration        { return c.events.Now() }
func (c *Instance) Targets() []*TargetInfo        { return c.targets }
func (c *Instance) TriggerCount(id uint32) uint32 { return c.triggerCount[id] }

func (c *Instance) IsFinished() bool { return c.status == StatusFinished }
func (c *Instance) IsFailed() bool   { return c.status == StatusFailed }
func (c *Instance) IsWaiting() bool  { return c.status == StatusWaiting }

func (c *Instance) persistent() bool { return c.info.CastMethod == data.CastAura }

func (c *Instance) castTime() time.Duration {
	if c.params.HasCastTimeOverride {
		return c.params.CastTimeOverride
	}
	return c.info.CastTime
}

// IsCasting reports whether the cast blocks its caster from starting another
// user-initiated cast.
func (c *Instance) IsCasting() bool {
	if c.params.IsProxy {
		return false
	}
	if !c.caster.IsPlayer() && c.status == StatusInitiating {
		return true
	}
	if c.caster.IsPlayer() && !c.params.UserInitiated {
		return false
	}
	return c.method.isCasting(c.status)
}

// IsMovingInterrupted reports whether moving cancels this cast.
func (c *Instance) IsMovingInterrupted() bool {
	return c.params.UserInitiated && !c.info.CanMoveWhileCasting && c.info.CastTime > 0
}

// Cast validates the cast and installs its timing. On a waiting threshold
// cast it is the release or tap signal instead.
func (c *Instance) Cast() error {
	if c.status == StatusWaiting && c.threshold != nil {
		return c.thresholdCast()
	}
	if c.status != StatusInitiating {
		return fmt.Errorf("cast %d is %s: %w", c.id, c.status, ErrInvalidState)
	}
	c.log.Debug("cast initiating")

	if result := c.checkCast(false); result != ResultOk {
		c.status = StatusFailed
		if !c.params.IsProxy {
			if c.caster.IsPlayer() {
				c.host.stateOf(c.caster).ClearContinuousCast()
			}
			c.reportResult(result)
		}
		return &CastError{AbilityID: c.info.ID, Result: result}
	}

	if c.caster.IsPlayer() {
		state := c.host.stateOf(c.caster)
		switch {
		case c.params.IsProxy:
			state.SetCooldown(c.info.ID, c.params.CooldownOverride)
		case c.info.GlobalCooldown > 0:
			state.SetGlobalCooldown(c.info.GlobalCooldownType, c.info.GlobalCooldown)
		}
	} else {
		c.initTelegraphs()
	}

	if err := c.method.install(c); err != nil {
		c.status = StatusFailed
		return err
	}
	c.status = StatusCasting
	c.startNotify()
	c.log.Debug("cast started")
	return nil
}

func (c *Instance) startNotify() {
	ci := c.params.ClientInteraction
	if ci == nil || c.info.CastMethod != data.CastClientSideInteraction {
		c.emitStart()
		return
	}
	if !c.caster.IsPlayer() {
		return
	}
	event.Emit(c.deps.Bus, ClientInteractionStartEvent{
		CasterID:        c.caster.ID(),
		CastingID:       c.id,
		ClientUniqueID:  ci.ClientUniqueID,
		PrimaryTargetID: c.params.PrimaryTargetID,
	})
}

// checkCast runs the legality checks in their fixed order. rethreshold is set
// when a waiting threshold cast re-validates on release.
func (c *Instance) checkCast(rethreshold bool) CastResult {
	if c.caster.IsPlayer() && !c.runnerOverride() {
		if p := c.info.CasterCastPrereq; p > 0 && !c.deps.Prereqs.Meets(c.caster, p) {
			return ResultPrereqCasterCast
		}
	}
	if c.info.CasterCCMask != 0 && c.caster.CCState()&c.info.CasterCCMask != 0 {
		return ResultCasterCrowdControlled
	}
	if !c.caster.IsPlayer() {
		return ResultOk
	}

	state := c.host.stateOf(c.caster)
	user := c.params.UserInitiated && !c.params.IsProxy
	if user && !rethreshold && c.host.isCasting(c.caster.ID(), c) {
		return ResultAlreadyCasting
	}
	if user && state.Cooldown(c.info.ID) > 0 {
		return ResultCooldown
	}
	if user && !rethreshold && c.info.CastMethod != data.CastChargeRelease &&
		state.GlobalCooldown(c.info.GlobalCooldownType) > 0 {
		return ResultGlobalCooldown
	}
	if c.info.MaxCharges > 0 && state.Charges(c.info) == 0 {
		return ResultNoCharges
	}
	if result := c.checkResources(); result != ResultOk {
		if user {
			state.ClearContinuousCast()
		}
		return result
	}
	return ResultOk
}

func (c *Instance) runnerOverride() bool {
	for _, id := range c.info.PrereqRunners {
		if c.deps.Prereqs.Meets(c.caster, id) {
			return true
		}
	}
	return false
}

func (c *Instance) checkResources() CastResult {
	if c.runnerOverride() {
		return ResultOk
	}
	for _, cost := range c.info.Costs {
		if c.caster.Vital(cost.Vital) < cost.Amount {
			return ResultNotEnoughResource
		}
	}
	return ResultOk
}

// cost consumes a charge and the vital costs of the ability.
func (c *Instance) cost() {
	if !c.caster.IsPlayer() {
		return
	}
	if c.info.MaxCharges > 0 {
		c.host.stateOf(c.caster).UseCharge(c.info)
	}
	for _, cost := range c.info.Costs {
		c.caster.ModifyVital(cost.Vital, -cost.Amount)
	}
}

func (c *Instance) setCooldown() {
	if !c.caster.IsPlayer() || c.info.Cooldown == 0 {
		return
	}
	c.host.stateOf(c.caster).SetCooldown(c.info.ID, c.info.Cooldown)
}

func (c *Instance) hasThresholdWork() bool {
	return c.threshold != nil && c.threshold.pending()
}

// execute runs one execution pass. withCost charges the caster on the first
// pass; auras pass false on reconciliation passes.
func (c *Instance) execute(withCost bool) {
	c.status = StatusExecuting
	c.log.Debug("cast executing", zap.Uint8("phase", c.phase))

	if withCost && (c.phase == 0 || c.phase == noPhase) && !c.hasThresholdWork() &&
		c.info.CastMethod != data.CastChargeRelease {
		c.cost()
		c.setCooldown()
	}
	c.executed = true

	if !c.persistent() {
		for _, t := range c.targets {
			t.Effects = nil
		}
	}

	c.selectTargets()
	if err := c.executeEffects(); err != nil {
		c.abort(err)
		return
	}
	c.handleProxies()
	c.emitGo()

	if c.info.ThresholdTime > 0 {
		c.emitThresholdStart()
	}
	if c.params.ThresholdValue > 0 && c.params.Root != nil && len(c.params.Root.Thresholds) > 1 {
		c.emitThresholdUpdate()
	}
}

// abort ends the cast after a contract violation or handler fault.
func (c *Instance) abort(err error) {
	c.log.Error("cast aborted", zap.Error(err))
	c.Finish()
}

// Update advances the cast by dt.
func (c *Instance) Update(dt time.Duration) {
	if c.status == StatusInitiating || c.status.Terminal() {
		return
	}
	c.events.Update(dt)
	if c.threshold != nil {
		c.updateThreshold(dt)
	}
	if c.method.tick != nil {
		c.method.tick(c, dt)
	}
}

func (c *Instance) canFinish() bool {
	if c.hasThresholdWork() {
		return false
	}
	switch c.status {
	case StatusExecuting:
		return !c.events.HasPendingEvent() && !c.params.ForceCancelOnly
	case StatusWaiting, StatusFinishing:
		return true
	}
	return false
}

// LateUpdate moves the cast to Finished once nothing is left to do.
func (c *Instance) LateUpdate(time.Duration) {
	if c.status == StatusInitiating || c.status.Terminal() || !c.canFinish() {
		return
	}
	c.status = StatusFinished
	for _, t := range c.targets {
		c.removeEffects(t)
	}
	c.emitFinish()
	c.log.Debug("cast finished")

	if c.params.CompleteAction != nil {
		c.params.CompleteAction(&c.params)
	}
	if c.threshold != nil && c.threshold.max > 0 {
		c.emitThresholdClear()
		if c.info.CastMethod != data.CastChargeRelease {
			c.setCooldown()
		}
	}
	if c.positional != 0 {
		c.deps.World.Despawn(c.positional)
		c.positional = 0
	}
}

// Finish cancels everything still scheduled and lets the cast finish on the
// next LateUpdate. Calling it again is a no-op.
func (c *Instance) Finish() {
	if c.status == StatusFinished {
		return
	}
	if c.threshold != nil {
		c.threshold.value = c.threshold.max
	}
	c.events.CancelEvents()
	c.status = StatusFinishing
}

// CancelCast stops a cast that is still casting or has threshold work left.
// While a threshold child is mid-cast the cancel goes to the child instead.
func (c *Instance) CancelCast(result CastResult) {
	if !c.IsCasting() && !c.hasThresholdWork() {
		return
	}
	if c.threshold != nil && c.hasThresholdWork() && len(c.threshold.children) > 0 {
		if child := c.threshold.children[0]; child.IsCasting() {
			child.CancelCast(result)
			return
		}
	}

	c.cancel(result)
}

func (c *Instance) cancel(result CastResult) {
	if c.caster.IsPlayer() {
		state := c.host.stateOf(c.caster)
		c.emitCancel(result)
		if result == ResultCasterMovement {
			state.SetGlobalCooldown(c.info.GlobalCooldownType, 0)
		}
		state.ClearContinuousCast()
		c.reportResult(result)
	}

	// no further taps or stages; live children still hold the cast open
	if c.threshold != nil {
		c.threshold.value = c.threshold.max
	}
	c.events.CancelEvents()
	c.status = StatusFinishing
	c.log.Debug("cast cancelled", zapResult(result))
}

// SucceedClientInteraction is the success signal of a client-gated cast.
func (c *Instance) SucceedClientInteraction() error {
	if c.params.ClientInteraction == nil {
		return fmt.Errorf("cast %d has no client interaction: %w", c.id, ErrInvalidState)
	}
	if c.status != StatusCasting {
		return fmt.Errorf("cast %d is %s: %w", c.id, c.status, ErrInvalidState)
	}
	c.execute(true)
	for i := range c.info.Effects {
		if c.info.Effects[i].Type == data.EffectActivate {
			return nil
		}
	}
	if fn := c.params.ClientInteraction.OnSuccess; fn != nil {
		fn(&c.params)
	}
	return nil
}

// FailClientInteraction is the failure signal of a client-gated cast.
func (c *Instance) FailClientInteraction() error {
	if c.params.ClientInteraction == nil {
		return fmt.Errorf("cast %d has no client interaction: %w", c.id, ErrInvalidState)
	}
	if c.status != StatusCasting {
		return fmt.Errorf("cast %d is %s: %w", c.id, c.status, ErrInvalidState)
	}
	if fn := c.params.ClientInteraction.OnFail; fn != nil {
		fn()
	}
	c.cancel(ResultClientInteractionFail)
	return nil
}
