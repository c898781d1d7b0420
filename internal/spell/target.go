package spell

import (
	"sort"

	"github.com/l1jgo/spellengine/internal/core/ecs"
	"github.com/l1jgo/spellengine/internal/data"
	"go.uber.org/zap"
)

// TargetFlags are the roles a unit plays in a cast.
type TargetFlags uint8

const (
	TargetCaster  = TargetFlags(data.EffectTargetCaster)
	TargetPrimary = TargetFlags(data.EffectTargetPrimary)
	TargetArea    = TargetFlags(data.EffectTargetArea)
)

// SelectionState classifies a target against the previous selection pass
// of a persistent cast.
type SelectionState uint8

const (
	SelectionNew SelectionState = iota
	SelectionExisting
	SelectionExpired
)

func (s SelectionState) String() string {
	switch s {
	case SelectionNew:
		return "new"
	case SelectionExisting:
		return "existing"
	case SelectionExpired:
		return "expired"
	}
	return "unknown"
}

// rank orders records after reconciliation: existing, new, expired.
func (s SelectionState) rank() int {
	switch s {
	case SelectionExisting:
		return 0
	case SelectionNew:
		return 1
	}
	return 2
}

// DamageDescription is the outcome payload a damage handler fills in.
type DamageDescription struct {
	RawDamage          uint32
	RawScaledDamage    uint32
	AbsorbedAmount     uint32
	ShieldAbsorbAmount uint32
	AdjustedDamage     uint32
	OverkillAmount     uint32
	KilledTarget       bool
	CombatResult       uint8
	DamageType         uint8
}

// EffectApplication records that an effect was applied to a target.
type EffectApplication struct {
	Effect *data.EffectInfo
	ID     uint32
	Damage *DamageDescription
}

// TargetInfo is one unit relevant to the current pass.
type TargetInfo struct {
	Unit     Unit
	Flags    TargetFlags
	Distance float64
	State    SelectionState
	Effects  []*EffectApplication
}

// areaOnly reports whether the record was selected by area alone and is
// therefore subject to the target cap.
func (t *TargetInfo) areaOnly() bool {
	return t.Flags&(TargetCaster|TargetPrimary) == 0
}

// selectTargets rebuilds the target list for one execution pass.
func (c *Instance) selectTargets() {
	var previous []*TargetInfo
	if c.persistent() {
		previous = c.targets
	}

	selected := make([]*TargetInfo, 0, 8)
	self := &TargetInfo{Unit: c.caster, Flags: TargetCaster}
	selected = append(selected, self)

	switch id := c.params.PrimaryTargetID; {
	case id == 0 || id == c.caster.ID():
		self.Flags |= TargetPrimary
	default:
		if u, ok := c.caster.Visible(id); ok {
			selected = append(selected, &TargetInfo{
				Unit:     u,
				Flags:    TargetPrimary,
				Distance: c.caster.Position().Distance(u.Position()),
			})
		}
	}

	if c.caster.IsPlayer() {
		c.initTelegraphs()
	}
	if len(c.telegraphs) > 0 {
		selected = append(selected, c.selectTelegraphTargets()...)
	}

	selected = mergeTargets(selected)
	if previous != nil {
		selected = reconcileTargets(previous, selected, c.info.Aoe.TargetCount)
	}
	c.targets = selected
	c.log.Debug("targets selected", zap.Int("count", len(selected)))
}

func (c *Instance) selectTelegraphTargets() []*TargetInfo {
	candidates := c.selectAoe()
	if len(candidates) == 0 {
		return nil
	}

	limit := c.info.Aoe.TargetCount
	claimed := make(map[ecs.EntityID]struct{}, len(candidates))
	var out []*TargetInfo
	for _, tg := range c.telegraphs {
		if !c.phaseMatches(tg.Info.PhaseFlags) {
			continue
		}
		seen := make(map[ecs.EntityID]struct{}, len(candidates))
		for _, cand := range candidates {
			if limit > 0 && len(out) >= limit {
				return out
			}
			id := cand.Unit.ID()
			if _, dup := seen[id]; dup {
				continue
			}
			if _, taken := claimed[id]; taken && c.info.UniqueTargets {
				continue
			}
			if !tg.Accepts(c.caster, cand.Unit) {
				continue
			}
			out = append(out, &TargetInfo{Unit: cand.Unit, Flags: TargetArea, Distance: cand.Distance})
			seen[id] = struct{}{}
			claimed[id] = struct{}{}
		}
	}
	return out
}

// mergeTargets collapses records for the same unit into the first one,
// unioning their role flags.
func mergeTargets(in []*TargetInfo) []*TargetInfo {
	byID := make(map[ecs.EntityID]*TargetInfo, len(in))
	out := in[:0]
	for _, t := range in {
		id := t.Unit.ID()
		if first, ok := byID[id]; ok {
			first.Flags |= t.Flags
			continue
		}
		byID[id] = t
		out = append(out, t)
	}
	return out
}

// reconcileTargets classifies current against previous, keeps expired
// records one more pass for teardown and enforces the target cap, demoting
// rather than dropping units that already carry effects.
func reconcileTargets(previous, current []*TargetInfo, limit int) []*TargetInfo {
	prevByID := make(map[ecs.EntityID]*TargetInfo, len(previous))
	for _, p := range previous {
		if p.State != SelectionExpired {
			prevByID[p.Unit.ID()] = p
		}
	}
	curIDs := make(map[ecs.EntityID]struct{}, len(current))
	for _, t := range current {
		curIDs[t.Unit.ID()] = struct{}{}
		if p, ok := prevByID[t.Unit.ID()]; ok {
			t.State = SelectionExisting
			t.Effects = p.Effects
		} else {
			t.State = SelectionNew
		}
	}
	out := current
	for _, p := range previous {
		if p.State == SelectionExpired {
			continue
		}
		if _, still := curIDs[p.Unit.ID()]; still {
			continue
		}
		p.State = SelectionExpired
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].State.rank() < out[j].State.rank()
	})

	if limit <= 0 {
		return out
	}
	kept := out[:0]
	area := 0
	for _, t := range out {
		if !t.areaOnly() || t.State == SelectionExpired {
			kept = append(kept, t)
			continue
		}
		if area < limit {
			area++
			kept = append(kept, t)
			continue
		}
		if t.State == SelectionExisting {
			t.State = SelectionExpired
			kept = append(kept, t)
		}
	}
	return kept
}

func anyNew(targets []*TargetInfo) bool {
	for _, t := range targets {
		if t.State == SelectionNew {
			return true
		}
	}
	return false
}
