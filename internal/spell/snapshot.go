package spell

import (
	"fmt"
	"time"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Snapshot is the resumable state of a live cast. Threshold children are not
// captured; a restored parent resumes without them.
type Snapshot struct {
	CastingID       uint32       `msgpack:"casting_id"`
	CasterID        ecs.EntityID `msgpack:"caster_id"`
	AbilityID       uint32       `msgpack:"ability_id"`
	ParentAbilityID uint32       `msgpack:"parent_ability_id,omitempty"`
	RootAbilityID   uint32       `msgpack:"root_ability_id,omitempty"`

	PrimaryTargetID     ecs.EntityID  `msgpack:"primary_target_id,omitempty"`
	PositionalUnitID    ecs.EntityID  `msgpack:"positional_unit_id,omitempty"`
	OwnsPositional      bool          `msgpack:"owns_positional,omitempty"`
	UserInitiated       bool          `msgpack:"user_initiated"`
	IsProxy             bool          `msgpack:"is_proxy,omitempty"`
	ForceCancelOnly     bool          `msgpack:"force_cancel_only,omitempty"`
	CastTimeOverride    time.Duration `msgpack:"cast_time_override,omitempty"`
	HasCastTimeOverride bool          `msgpack:"has_cast_time_override,omitempty"`
	CooldownOverride    time.Duration `msgpack:"cooldown_override,omitempty"`
	StageValue          uint32        `msgpack:"stage_value,omitempty"`

	Status    Status             `msgpack:"status"`
	Phase     uint8              `msgpack:"phase"`
	Elapsed   time.Duration      `msgpack:"elapsed"`
	Duration  time.Duration      `msgpack:"duration"`
	Executed  bool               `msgpack:"executed"`
	AuraTimer time.Duration      `msgpack:"aura_timer,omitempty"`
	Threshold *ThresholdSnapshot `msgpack:"threshold,omitempty"`

	TriggerCounts map[uint32]uint32 `msgpack:"trigger_counts,omitempty"`
	Retrigger     []RetriggerTimer  `msgpack:"retrigger,omitempty"`
	Holds         []time.Duration   `msgpack:"holds,omitempty"`
	Proxies       []ProxySnapshot   `msgpack:"proxies,omitempty"`
	Targets       []TargetSnapshot  `msgpack:"targets,omitempty"`
}

type ThresholdSnapshot struct {
	Value     uint32        `msgpack:"value"`
	Max       uint32        `msgpack:"max"`
	Hold      time.Duration `msgpack:"hold"`
	HoldLimit time.Duration `msgpack:"hold_limit"`
}

type RetriggerTimer struct {
	EffectID uint32        `msgpack:"effect_id"`
	Left     time.Duration `msgpack:"left"`
}

// ProxySnapshot is a dispatched proxy whose schedule may still fire.
type ProxySnapshot struct {
	RecipientID ecs.EntityID  `msgpack:"recipient_id"`
	EffectID    uint32        `msgpack:"effect_id"`
	At          time.Duration `msgpack:"at"`
}

type TargetSnapshot struct {
	UnitID  ecs.EntityID    `msgpack:"unit_id"`
	Flags   TargetFlags     `msgpack:"flags"`
	State   SelectionState  `msgpack:"state"`
	Effects []AppliedEffect `msgpack:"effects,omitempty"`
}

type AppliedEffect struct {
	EffectID      uint32 `msgpack:"effect_id"`
	ApplicationID uint32 `msgpack:"application_id"`
}

func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode cast %d: %w", s.CastingID, err)
	}
	return b, nil
}

func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode cast snapshot: %w", err)
	}
	return &s, nil
}

// done reports whether nothing of the proxy's schedule can fire after now.
func (r proxyRecord) done(now time.Duration) bool {
	e := r.proxy.Effect
	start := r.at + e.DelayTime
	switch {
	case e.TickTime <= 0:
		return start <= now
	case e.DurationTime > 0:
		last := start + e.TickTime*time.Duration(int64(e.DurationTime/e.TickTime))
		return last <= now
	}
	return false
}

// Snapshot captures the cast. It must be called between ticks.
func (c *Instance) Snapshot() *Snapshot {
	now := c.events.Now()
	s := &Snapshot{
		CastingID:           c.id,
		CasterID:            c.caster.ID(),
		AbilityID:           c.info.ID,
		ParentAbilityID:     abilityID(c.params.Parent),
		RootAbilityID:       abilityID(c.params.Root),
		PrimaryTargetID:     c.params.PrimaryTargetID,
		PositionalUnitID:    c.params.PositionalUnitID,
		OwnsPositional:      c.positional != 0,
		UserInitiated:       c.params.UserInitiated,
		IsProxy:             c.params.IsProxy,
		ForceCancelOnly:     c.params.ForceCancelOnly,
		CastTimeOverride:    c.params.CastTimeOverride,
		HasCastTimeOverride: c.params.HasCastTimeOverride,
		CooldownOverride:    c.params.CooldownOverride,
		StageValue:          c.params.ThresholdValue,
		Status:              c.status,
		Phase:               c.phase,
		Elapsed:             now,
		Duration:            c.duration,
		Executed:            c.executed,
		AuraTimer:           c.auraTimer,
	}
	if t := c.threshold; t != nil {
		s.Threshold = &ThresholdSnapshot{Value: t.value, Max: t.max, Hold: t.hold, HoldLimit: t.holdLimit}
	}
	if len(c.triggerCount) > 0 {
		s.TriggerCounts = make(map[uint32]uint32, len(c.triggerCount))
		for id, n := range c.triggerCount {
			s.TriggerCounts[id] = n
		}
	}
	for _, id := range c.retriggerOrder {
		s.Retrigger = append(s.Retrigger, RetriggerTimer{EffectID: id, Left: c.retrigger[id]})
	}

	holds := c.holds[:0]
	for _, h := range c.holds {
		if h > now {
			holds = append(holds, h)
		}
	}
	c.holds = holds
	s.Holds = append(s.Holds, holds...)

	kept := c.dispatched[:0]
	for _, r := range c.dispatched {
		if r.done(now) {
			continue
		}
		kept = append(kept, r)
		s.Proxies = append(s.Proxies, ProxySnapshot{
			RecipientID: r.proxy.Recipient.ID(),
			EffectID:    r.proxy.Effect.ID,
			At:          r.at,
		})
	}
	c.dispatched = kept

	for _, t := range c.targets {
		ts := TargetSnapshot{UnitID: t.Unit.ID(), Flags: t.Flags, State: t.State}
		for _, app := range t.Effects {
			ts.Effects = append(ts.Effects, AppliedEffect{EffectID: app.Effect.ID, ApplicationID: app.ID})
		}
		s.Targets = append(s.Targets, ts)
	}
	return s
}

// Snapshots captures every live cast.
func (m *Manager) Snapshots() []*Snapshot {
	out := make([]*Snapshot, 0, len(m.casts))
	for _, c := range m.casts {
		if c.status == StatusInitiating || c.status.Terminal() {
			continue
		}
		out = append(out, c.Snapshot())
	}
	return out
}

// Restore rebuilds a cast from its snapshot. The timing topology is
// installed again and fast-forwarded to the snapshot time without firing
// anything that already ran.
func (m *Manager) Restore(caster Caster, s *Snapshot) (*Instance, error) {
	if caster.ID() != s.CasterID {
		return nil, fmt.Errorf("restore cast %d: caster %s does not match %s: %w", s.CastingID, caster.ID(), s.CasterID, ErrInvalidState)
	}
	if s.Status == StatusInitiating || s.Status.Terminal() {
		return nil, fmt.Errorf("restore cast %d in %s: %w", s.CastingID, s.Status, ErrInvalidState)
	}
	abilities := m.deps.Abilities
	info := abilities.Get(s.AbilityID)
	if info == nil {
		return nil, fmt.Errorf("restore cast %d: ability %d: %w", s.CastingID, s.AbilityID, ErrUnknownAbility)
	}
	params := Parameters{
		PrimaryTargetID:     s.PrimaryTargetID,
		PositionalUnitID:    s.PositionalUnitID,
		UserInitiated:       s.UserInitiated,
		IsProxy:             s.IsProxy,
		ForceCancelOnly:     s.ForceCancelOnly,
		CastTimeOverride:    s.CastTimeOverride,
		HasCastTimeOverride: s.HasCastTimeOverride,
		CooldownOverride:    s.CooldownOverride,
		ThresholdValue:      s.StageValue,
	}
	if s.ParentAbilityID != 0 {
		params.Parent = abilities.Get(s.ParentAbilityID)
	}
	if s.RootAbilityID != 0 {
		params.Root = abilities.Get(s.RootAbilityID)
	}
	if s.OwnsPositional {
		if _, ok := m.deps.World.Unit(s.PositionalUnitID); !ok {
			params.PositionalUnitID = 0
		}
	}

	c := buildInstance(m, s.CastingID, caster, info, params)
	m.deps.IDs.ObserveCastingID(s.CastingID)
	if s.OwnsPositional && params.PositionalUnitID != 0 {
		c.positional = params.PositionalUnitID
	}

	if s.Status != StatusFinishing {
		if err := c.method.install(c); err != nil {
			return nil, fmt.Errorf("restore cast %d: %w", s.CastingID, err)
		}
		c.events.Skip(s.Elapsed)
		for _, h := range s.Holds {
			if h > s.Elapsed {
				c.holds = append(c.holds, h)
				c.events.EnqueueAt(h, func() {})
			}
		}
	} else {
		c.events.Skip(s.Elapsed)
	}

	c.status = s.Status
	c.phase = s.Phase
	c.duration = s.Duration
	c.executed = s.Executed
	c.auraTimer = s.AuraTimer
	if s.Threshold != nil && c.threshold != nil {
		c.threshold.max = s.Threshold.Max
		c.threshold.value = min(s.Threshold.Value, s.Threshold.Max)
		c.threshold.hold = s.Threshold.Hold
		c.threshold.holdLimit = s.Threshold.HoldLimit
	}
	clear(c.triggerCount)
	for id, n := range s.TriggerCounts {
		c.triggerCount[id] = n
	}
	clear(c.retrigger)
	c.retriggerOrder = c.retriggerOrder[:0]
	for _, r := range s.Retrigger {
		c.setRetrigger(r.EffectID, r.Left)
	}

	for _, ts := range s.Targets {
		u := m.resolve(caster, ts.UnitID)
		if u == nil {
			continue
		}
		t := &TargetInfo{Unit: u, Flags: ts.Flags, State: ts.State, Distance: caster.Position().Distance(u.Position())}
		for _, ae := range ts.Effects {
			e, ok := info.Effect(ae.EffectID)
			if !ok {
				continue
			}
			t.Effects = append(t.Effects, &EffectApplication{Effect: e, ID: ae.ApplicationID})
			m.deps.IDs.ObserveEffectID(ae.ApplicationID)
		}
		c.targets = append(c.targets, t)
	}

	if s.Status != StatusFinishing {
		for _, ps := range s.Proxies {
			u := m.resolve(caster, ps.RecipientID)
			e, ok := info.Effect(ps.EffectID)
			if u == nil || !ok {
				continue
			}
			p := newProxy(u, e, c)
			p.canCast = true
			p.schedule(c.events, ps.At, true)
			c.dispatched = append(c.dispatched, proxyRecord{proxy: p, at: ps.At})
		}
	}

	if !caster.IsPlayer() {
		c.initTelegraphs()
	}
	m.add(c)
	c.log.Debug("cast restored", zap.Duration("elapsed", s.Elapsed), zap.Stringer("status", s.Status))
	return c, nil
}

func (m *Manager) resolve(caster Caster, id ecs.EntityID) Unit {
	if id == caster.ID() {
		return caster
	}
	if u, ok := m.deps.World.Unit(id); ok {
		return u
	}
	return nil
}
