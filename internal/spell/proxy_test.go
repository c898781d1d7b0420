package spell

import (
	"testing"

	"github.com/l1jgo/spellengine/internal/data"
)

// proxyAbilities returns a parent (1) whose proxy effect 15 casts ability 2
// once or ability 3 on every tick. Both follow-ups damage the caster.
func proxyAbilities(proxy data.EffectInfo) []*data.AbilityInfo {
	proxy.ID = 15
	proxy.Type = data.EffectProxy
	proxy.TargetFlags = data.EffectTargetCaster
	proxy.PhaseFlags = data.AllPhases
	proxy.DataBits[0] = 2
	proxy.DataBits[1] = 3
	return []*data.AbilityInfo{
		{ID: 1, Effects: []data.EffectInfo{proxy}},
		{ID: 2, Effects: []data.EffectInfo{damageEffect(20, data.EffectTargetCaster)}},
		{ID: 3, Effects: []data.EffectInfo{damageEffect(30, data.EffectTargetCaster)}},
	}
}

func TestProxy_DelayedOneShot(t *testing.T) {
	h := newHarness(t, proxyAbilities(data.EffectInfo{DelayTime: ms(300)})...)
	parent := h.cast(t, 1)

	h.run(ms(100), 2)
	if parent.IsFinished() {
		t.Fatal("parent finished with a proxy still scheduled")
	}
	h.run(ms(100), 1)
	if n := h.rec.count(20); n != 0 {
		t.Fatalf("follow-up ran %d times before its dispatch tick", n)
	}
	h.run(ms(100), 2)
	if n := h.rec.count(20); n != 1 {
		t.Errorf("follow-up ran %d times, want 1", n)
	}
	if h.rec.count(30) != 0 {
		t.Errorf("one-shot proxy cast the ticking ability")
	}
	if !parent.IsFinished() {
		t.Errorf("parent status = %s", parent.Status())
	}
}

func TestProxy_TicksForDuration(t *testing.T) {
	h := newHarness(t, proxyAbilities(data.EffectInfo{TickTime: ms(100), DurationTime: ms(300)})...)
	parent := h.cast(t, 1)
	h.run(ms(100), 6)

	if n := h.rec.count(30); n != 3 {
		t.Errorf("ticking ability ran %d times, want 3", n)
	}
	if h.rec.count(20) != 0 {
		t.Errorf("ticking proxy cast the one-shot ability")
	}
	if !parent.IsFinished() {
		t.Errorf("parent status = %s", parent.Status())
	}
}

func TestProxy_RepeatsUntilParentFinishes(t *testing.T) {
	h := newHarness(t, proxyAbilities(data.EffectInfo{TickTime: ms(100)})...)
	parent := h.cast(t, 1)
	h.run(ms(100), 5)
	if parent.IsFinished() {
		t.Fatal("unbounded proxy let the parent finish")
	}
	if !h.m.FinishCast(parent.CastingID()) {
		t.Fatal("FinishCast did not find the parent")
	}
	h.run(ms(100), 5)

	if n := h.rec.count(30); n != 5 {
		t.Errorf("ticking ability ran %d times, want 5", n)
	}
	if !parent.IsFinished() {
		t.Errorf("parent status = %s", parent.Status())
	}
}

func TestProxy_RecipientPrereq(t *testing.T) {
	tests := []struct {
		name   string
		denied bool
		want   int
	}{
		{"met", false, 1},
		{"denied", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e data.EffectInfo
			e.DataBits[6] = 77
			h := newHarness(t, proxyAbilities(e)...)
			h.prereqs.denied[77] = tt.denied
			h.cast(t, 1)
			h.run(ms(100), 3)
			if n := h.rec.count(20); n != tt.want {
				t.Errorf("follow-up ran %d times, want %d", n, tt.want)
			}
		})
	}
}

func TestProxy_FollowUpCarriesLineage(t *testing.T) {
	h := newHarness(t, proxyAbilities(data.EffectInfo{DelayTime: ms(100)})...)
	h.cast(t, 1)
	h.run(ms(100), 1)

	var child *Instance
	for _, c := range h.m.Active() {
		if c.Ability().ID == 2 {
			child = c
		}
	}
	if child == nil {
		t.Fatal("follow-up cast not tracked by the manager")
	}
	p := child.Parameters()
	if !p.IsProxy || p.Parent == nil || p.Parent.ID != 1 || p.Root == nil || p.Root.ID != 1 {
		t.Errorf("params = %+v, want a proxy rooted at ability 1", p)
	}
	if p.PrimaryTargetID != h.player.id {
		t.Errorf("primary target = %s, want the recipient", p.PrimaryTargetID)
	}
}
