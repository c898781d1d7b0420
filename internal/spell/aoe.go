package spell

import (
	"math/rand"
	"sort"

	"github.com/l1jgo/spellengine/internal/data"
)

// aoeCheck is the predicate handed to World.Search.
func aoeCheck(caster Caster, origin Position, radius float64, flags data.TargetMechanicFlags, u Unit) bool {
	if flags&data.TargetIsPlayer != 0 && !u.IsPlayer() {
		return false
	}
	if u.Faction() == 0 {
		return false
	}
	d := caster.DispositionTo(u.Faction())
	if flags&data.TargetIsEnemy != 0 && d > DispositionNeutral {
		return false
	}
	if flags&data.TargetIsFriendly != 0 && d < DispositionNeutral {
		return false
	}
	return origin.Distance(u.Position()) <= radius
}

// origin is where area searches and telegraphs are anchored: the positional
// entity when the cast has one, otherwise the caster.
func (c *Instance) origin() (Position, float64) {
	if id := c.params.PositionalUnitID; id != 0 {
		if u, ok := c.deps.World.Unit(id); ok {
			return u.Position(), u.Yaw()
		}
	}
	return c.caster.Position(), c.caster.Yaw()
}

// selectAoe returns the area candidates for this pass in selection order.
// Self and primary-target abilities have no area candidates.
func (c *Instance) selectAoe() []*TargetInfo {
	mech := c.info.Mechanics
	if mech.Type == data.TargetMechanicSelf || mech.Type == data.TargetMechanicPrimaryTarget {
		return nil
	}
	origin, _ := c.origin()
	radius := c.info.TargetMaxRange
	units := c.deps.World.Search(origin, radius, func(u Unit) bool {
		return aoeCheck(c.caster, origin, radius, mech.Flags, u)
	})
	out := make([]*TargetInfo, 0, len(units))
	for _, u := range units {
		out = append(out, &TargetInfo{Unit: u, Flags: TargetArea, Distance: origin.Distance(u.Position())})
	}
	orderAoe(out, c.info.Aoe.Selection, c.deps.Rand)
	return out
}

// orderAoe sorts candidates in place. Every policy is stable so ties keep
// evaluation order.
func orderAoe(list []*TargetInfo, sel data.AoeSelection, rng *rand.Rand) {
	switch sel {
	case data.AoeClosest:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Distance < list[j].Distance })
	case data.AoeFurthest:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Distance > list[j].Distance })
	case data.AoeRandom:
		if rng != nil {
			rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
		}
	case data.AoeLowestHealth:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Unit.Health() < list[j].Unit.Health() })
	case data.AoeMissingMostHealth:
		missing := func(t *TargetInfo) float64 { return t.Unit.MaxHealth() - t.Unit.Health() }
		sort.SliceStable(list, func(i, j int) bool { return missing(list[i]) > missing(list[j]) })
	}
}
