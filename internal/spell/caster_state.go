package spell

import (
	"time"

	"github.com/l1jgo/spellengine/internal/data"
)

type chargeState struct {
	max      uint32
	left     uint32
	recharge time.Duration
	timer    time.Duration
}

// CasterState is the per-player cast bookkeeping shared by all casts of one
// caster: ability cooldowns, global cooldowns, charges and the continuous
// cast. Non-player casters have none.
type CasterState struct {
	caster     Caster
	cooldowns  map[uint32]time.Duration
	global     map[uint32]time.Duration
	charges    map[uint32]*chargeState
	continuous uint32
}

func newCasterState(caster Caster) *CasterState {
	return &CasterState{
		caster:    caster,
		cooldowns: make(map[uint32]time.Duration),
		global:    make(map[uint32]time.Duration),
		charges:   make(map[uint32]*chargeState),
	}
}

// Cooldown returns the time left before abilityID can be cast again.
func (s *CasterState) Cooldown(abilityID uint32) time.Duration { return s.cooldowns[abilityID] }

func (s *CasterState) SetCooldown(abilityID uint32, d time.Duration) {
	if d <= 0 {
		delete(s.cooldowns, abilityID)
		return
	}
	s.cooldowns[abilityID] = d
}

func (s *CasterState) GlobalCooldown(typ uint32) time.Duration { return s.global[typ] }

func (s *CasterState) SetGlobalCooldown(typ uint32, d time.Duration) {
	if d <= 0 {
		delete(s.global, typ)
		return
	}
	s.global[typ] = d
}

func (s *CasterState) charge(info *data.AbilityInfo) *chargeState {
	cs, ok := s.charges[info.ID]
	if !ok {
		cs = &chargeState{max: info.MaxCharges, left: info.MaxCharges, recharge: info.ChargeRecharge}
		s.charges[info.ID] = cs
	}
	return cs
}

// Charges returns the charges left on info. Abilities without charges
// always report zero.
func (s *CasterState) Charges(info *data.AbilityInfo) uint32 {
	if info.MaxCharges == 0 {
		return 0
	}
	return s.charge(info).left
}

// UseCharge consumes one charge and starts the recharge timer if it was idle.
func (s *CasterState) UseCharge(info *data.AbilityInfo) {
	if info.MaxCharges == 0 {
		return
	}
	cs := s.charge(info)
	if cs.left == 0 {
		return
	}
	if cs.left == cs.max {
		cs.timer = cs.recharge
	}
	cs.left--
}

// ContinuousCast is the ability the caster keeps recasting, or 0.
func (s *CasterState) ContinuousCast() uint32 { return s.continuous }

func (s *CasterState) SetContinuousCast(abilityID uint32) { s.continuous = abilityID }

func (s *CasterState) ClearContinuousCast() { s.continuous = 0 }

// Cooldowns returns a copy of the running ability cooldowns.
func (s *CasterState) Cooldowns() map[uint32]time.Duration {
	out := make(map[uint32]time.Duration, len(s.cooldowns))
	for id, d := range s.cooldowns {
		out[id] = d
	}
	return out
}

// Update counts every timer down by dt.
func (s *CasterState) Update(dt time.Duration) {
	for id, d := range s.cooldowns {
		if d -= dt; d <= 0 {
			delete(s.cooldowns, id)
		} else {
			s.cooldowns[id] = d
		}
	}
	for typ, d := range s.global {
		if d -= dt; d <= 0 {
			delete(s.global, typ)
		} else {
			s.global[typ] = d
		}
	}
	for _, cs := range s.charges {
		if cs.left >= cs.max || cs.recharge <= 0 {
			continue
		}
		cs.timer -= dt
		for cs.timer <= 0 && cs.left < cs.max {
			cs.left++
			cs.timer += cs.recharge
		}
	}
}
