package spell

import (
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/spellengine/internal/data"
)

func stageAbilities(castTime time.Duration, ids ...uint32) []*data.AbilityInfo {
	out := make([]*data.AbilityInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, &data.AbilityInfo{
			ID:       id,
			CastTime: castTime,
			Effects:  []data.EffectInfo{damageEffect(id*10, data.EffectTargetCaster)},
		})
	}
	return out
}

func rapidTap() *data.AbilityInfo {
	return &data.AbilityInfo{
		ID:            10,
		CastMethod:    data.CastRapidTap,
		ThresholdTime: 2 * time.Second,
		Thresholds: []data.ThresholdInfo{
			{OrderIndex: 0, AbilityID: 11},
			{OrderIndex: 1, AbilityID: 12},
			{OrderIndex: 2, AbilityID: 13},
		},
	}
}

func TestRapidTap_EachTapSpawnsNextStage(t *testing.T) {
	h := newHarness(t, append(stageAbilities(ms(100), 11, 12, 13), rapidTap())...)
	parent := h.cast(t, 10)
	h.run(ms(50), 1)
	if !parent.IsWaiting() {
		t.Fatalf("status = %s, want waiting", parent.Status())
	}

	for i, stage := range []uint32{11, 12, 13} {
		if err := h.m.Tap(h.player.id, 10); err != nil {
			t.Fatalf("tap %d: %v", i+1, err)
		}
		children := parent.Children()
		child := children[len(children)-1]
		if child.Ability().ID != stage {
			t.Errorf("tap %d spawned ability %d, want %d", i+1, child.Ability().ID, stage)
		}
		if got := child.Parameters().ThresholdValue; got != uint32(i+1) {
			t.Errorf("tap %d child threshold value = %d", i+1, got)
		}
		if v, max := parent.ThresholdValue(); v != uint32(i+1) || v > max {
			t.Errorf("tap %d value = %d/%d", i+1, v, max)
		}
		h.run(ms(50), 1)
		if parent.IsFinished() {
			t.Fatalf("parent finished while child %d alive", stage)
		}
		h.run(ms(50), 1)
	}

	for _, stage := range []uint32{11, 12, 13} {
		if n := h.rec.count(stage * 10); n != 1 {
			t.Errorf("stage %d applied %d times", stage, n)
		}
	}
	if !parent.IsFinished() {
		t.Errorf("status = %s, want finished after the last child", parent.Status())
	}
}

func TestRapidTap_ValueNeverExceedsMax(t *testing.T) {
	h := newHarness(t, append(stageAbilities(0, 11, 12, 13), rapidTap())...)
	parent := h.cast(t, 10)
	h.run(ms(50), 1)
	for i := 0; i < 3; i++ {
		if err := parent.Cast(); err != nil {
			t.Fatalf("tap %d: %v", i, err)
		}
	}
	err := parent.Cast()
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("extra tap err = %v, want ErrInvalidState", err)
	}
	if v, max := parent.ThresholdValue(); v != max {
		t.Errorf("value = %d, max = %d", v, max)
	}
}

func TestRapidTap_IdleTimeoutFinishes(t *testing.T) {
	h := newHarness(t, append(stageAbilities(0, 11, 12, 13), rapidTap())...)
	parent := h.cast(t, 10)
	h.run(ms(100), 19)
	if parent.IsFinished() {
		t.Fatal("finished before the idle timeout")
	}
	h.run(ms(100), 2)
	if !parent.IsFinished() {
		t.Errorf("status = %s, want finished", parent.Status())
	}
	if len(h.rec.applied) != 0 {
		t.Errorf("idle parent spawned stages")
	}
}

func TestRapidTap_FailedValidationReports(t *testing.T) {
	tap := rapidTap()
	tap.Costs = []data.ResourceCost{{Vital: data.VitalFocus, Amount: 60}}
	h := newHarness(t, append(stageAbilities(0, 11, 12, 13), tap)...)
	results := collect[CastResultEvent](h.bus)
	parent := h.cast(t, 10)
	h.run(ms(50), 1)

	h.player.ModifyVital(data.VitalFocus, -50)
	err := h.m.Tap(h.player.id, 10)
	if ResultOf(err) != ResultNotEnoughResource {
		t.Fatalf("err = %v", err)
	}
	if len(parent.Children()) != 0 {
		t.Errorf("child spawned despite failed validation")
	}
	flush(h.bus)
	if len(*results) != 1 {
		t.Errorf("got %d result events, want 1", len(*results))
	}
}

func TestChargeRelease(t *testing.T) {
	charge := func() *data.AbilityInfo {
		return &data.AbilityInfo{
			ID:            20,
			CastMethod:    data.CastChargeRelease,
			ThresholdTime: time.Second,
			Thresholds: []data.ThresholdInfo{
				{OrderIndex: 0, AbilityID: 21},
				{OrderIndex: 1, ThresholdDuration: ms(300), AbilityID: 22},
				{OrderIndex: 2, ThresholdDuration: ms(300), AbilityID: 23},
			},
		}
	}
	tests := []struct {
		name      string
		releaseAt int // ticks of 100ms before release, 0 = never
		want      uint32
	}{
		{"early release", 2, 21},
		{"after first stage", 4, 22},
		{"forced at max hold", 0, 23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, append(stageAbilities(0, 21, 22, 23), charge())...)
			parent := h.cast(t, 20)
			if tt.releaseAt > 0 {
				h.run(ms(100), tt.releaseAt)
				if !parent.IsWaiting() {
					t.Fatalf("status = %s, want waiting", parent.Status())
				}
				if err := h.m.Tap(h.player.id, 20); err != nil {
					t.Fatal(err)
				}
			}
			h.run(ms(100), 15)

			for _, id := range []uint32{21, 22, 23} {
				want := 0
				if id == tt.want {
					want = 1
				}
				if n := h.rec.count(id * 10); n != want {
					t.Errorf("stage %d applied %d times, want %d", id, n, want)
				}
			}
			if !parent.IsFinished() {
				t.Errorf("status = %s, want finished", parent.Status())
			}
			if v, max := parent.ThresholdValue(); v != max {
				t.Errorf("value %d/%d after release", v, max)
			}
		})
	}
}

func TestChargeRelease_CancelWaitsForProxyChild(t *testing.T) {
	charge := &data.AbilityInfo{
		ID:            20,
		CastMethod:    data.CastChargeRelease,
		ThresholdTime: time.Second,
		Thresholds:    []data.ThresholdInfo{{OrderIndex: 0, AbilityID: 21}},
	}
	child := &data.AbilityInfo{ID: 21, CastMethod: data.CastChanneled, ChannelInitialDelay: ms(100), ChannelMaxTime: time.Second, ChannelPulseTime: ms(200),
		Effects: []data.EffectInfo{damageEffect(210, data.EffectTargetCaster)}}
	h := newHarness(t, charge, child)
	parent := h.cast(t, 20)
	h.run(ms(50), 1)
	if err := h.m.Tap(h.player.id, 20); err != nil {
		t.Fatal(err)
	}
	kid := parent.Children()[0]

	parent.CancelCast(ResultCancelled)
	if kid.Status() == StatusFinishing {
		t.Fatal("proxy child is not casting and must not take the cancel")
	}
	if parent.Status() != StatusFinishing {
		t.Errorf("parent status = %s", parent.Status())
	}
	h.run(ms(100), 20)
	if !parent.IsFinished() {
		t.Errorf("parent status = %s, want finished once the child ended", parent.Status())
	}
}

func TestThreshold_CancelWhileWaitingFinishes(t *testing.T) {
	charge := &data.AbilityInfo{
		ID:            20,
		CastMethod:    data.CastChargeRelease,
		ThresholdTime: 5 * time.Second,
		Thresholds: []data.ThresholdInfo{
			{OrderIndex: 0, AbilityID: 21},
			{OrderIndex: 1, ThresholdDuration: ms(300), AbilityID: 22},
		},
	}
	tests := []struct {
		name    string
		ability uint32
		result  CastResult
	}{
		{"rapid tap moved", 10, ResultCasterMovement},
		{"rapid tap cancelled", 10, ResultCancelled},
		{"charge release moved", 20, ResultCasterMovement},
		{"charge release interrupted", 20, ResultInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, append(stageAbilities(0, 11, 12, 13, 21, 22), rapidTap(), charge)...)
			finished := collect[CastFinishEvent](h.bus)
			parent := h.cast(t, tt.ability)
			h.run(ms(50), 1)
			if !parent.IsWaiting() {
				t.Fatalf("status = %s, want waiting", parent.Status())
			}

			parent.CancelCast(tt.result)
			h.run(ms(100), 3)
			flush(h.bus)

			if !parent.IsFinished() {
				v, max := parent.ThresholdValue()
				t.Fatalf("status = %s value %d/%d, want finished", parent.Status(), v, max)
			}
			if len(*finished) != 1 {
				t.Errorf("finish events = %d, want 1", len(*finished))
			}
			if parent.HasThresholdToCast() {
				t.Error("threshold work left after cancel")
			}
			if n := h.rec.count(210) + h.rec.count(110); n != 0 {
				t.Errorf("stage applied %d times after cancel", n)
			}
			// the caster is free again
			if _, err := h.m.Cast(h.player, tt.ability, Parameters{UserInitiated: true}); err != nil {
				t.Errorf("recast: %v", err)
			}
		})
	}
}
