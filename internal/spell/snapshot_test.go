package spell

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/l1jgo/spellengine/internal/data"
)

// roundTrip encodes s and restores it into a fresh harness built from the
// same ability set. The first unit of every harness is the player, so ids
// line up.
func roundTrip(t *testing.T, s *Snapshot, abilities ...*data.AbilityInfo) (*harness, *Instance) {
	t.Helper()
	raw, err := EncodeSnapshot(s)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, abilities...)
	c, err := h.m.Restore(h.player, decoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	return h, c
}

func TestRestore_NormalMidCast(t *testing.T) {
	ability := &data.AbilityInfo{ID: 1, CastTime: ms(500), Effects: []data.EffectInfo{damageEffect(101, data.EffectTargetCaster)}}
	h := newHarness(t, ability)
	c := h.cast(t, 1)
	h.run(ms(100), 2)

	h2, restored := roundTrip(t, c.Snapshot(), ability)
	if restored.CastingID() != c.CastingID() || restored.Status() != StatusCasting {
		t.Fatalf("restored id %d status %s", restored.CastingID(), restored.Status())
	}
	if restored.Elapsed() != ms(200) {
		t.Errorf("restored elapsed = %v", restored.Elapsed())
	}
	h2.run(ms(100), 2)
	if h2.rec.count(101) != 0 {
		t.Fatal("restored cast executed early")
	}
	h2.run(ms(100), 2)
	if got := appTimes(h2.rec, 101); !reflect.DeepEqual(got, []time.Duration{ms(500)}) {
		t.Errorf("executed at %v, want [500ms]", got)
	}
	if !restored.IsFinished() {
		t.Errorf("status = %s", restored.Status())
	}

	next, err := h2.m.Cast(h2.player, 1, Parameters{UserInitiated: true})
	if err != nil {
		t.Fatal(err)
	}
	if next.CastingID() <= c.CastingID() {
		t.Errorf("new casting id %d reuses a restored id", next.CastingID())
	}
}

func TestRestore_AuraSplitKeepsPeriodicSchedule(t *testing.T) {
	tick := damageEffect(101, data.EffectTargetCaster)
	tick.TickTime = ms(200)
	ability := &data.AbilityInfo{ID: 1, CastMethod: data.CastAura, Duration: ms(1000), Effects: []data.EffectInfo{tick}}

	h := newHarness(t, ability)
	c := h.cast(t, 1)
	h.run(ms(100), 5)
	if got := appTimes(h.rec, 101); !reflect.DeepEqual(got, []time.Duration{0, ms(200), ms(400)}) {
		t.Fatalf("before split ticks at %v", got)
	}

	h2, restored := roundTrip(t, c.Snapshot(), ability)
	h2.run(ms(100), 7)
	if got := appTimes(h2.rec, 101); !reflect.DeepEqual(got, []time.Duration{ms(600), ms(800)}) {
		t.Errorf("after split ticks at %v, want [600ms 800ms]", got)
	}
	if restored.TriggerCount(101) != 5 {
		t.Errorf("trigger count = %d, want 5", restored.TriggerCount(101))
	}
	if !restored.IsFinished() {
		t.Errorf("status = %s", restored.Status())
	}
}

func TestRestore_ProxyTicksNotReplayed(t *testing.T) {
	abilities := proxyAbilities(data.EffectInfo{TickTime: ms(100), DurationTime: ms(300)})
	h := newHarness(t, abilities...)
	c := h.cast(t, 1)
	h.run(ms(50), 3)
	if n := h.rec.count(30); n != 1 {
		t.Fatalf("ran %d ticks before the split, want 1", n)
	}

	s := c.Snapshot()
	if len(s.Proxies) != 1 || len(s.Holds) != 1 {
		t.Fatalf("snapshot proxies %v holds %v", s.Proxies, s.Holds)
	}
	h2, restored := roundTrip(t, s, abilities...)
	h2.run(ms(50), 6)
	if n := h2.rec.count(30); n != 2 {
		t.Errorf("restored cast ran %d ticks, want 2", n)
	}
	if !restored.IsFinished() {
		t.Errorf("status = %s", restored.Status())
	}
}

func TestRestore_RapidTapValue(t *testing.T) {
	abilities := append(stageAbilities(ms(100), 11, 12, 13), rapidTap())
	h := newHarness(t, abilities...)
	c := h.cast(t, 10)
	h.run(ms(50), 1)
	if err := h.m.Tap(h.player.id, 10); err != nil {
		t.Fatal(err)
	}
	h.run(ms(100), 2)

	_, restored := roundTrip(t, c.Snapshot(), abilities...)
	if v, max := restored.ThresholdValue(); v != 1 || max != 3 {
		t.Fatalf("restored value %d/%d, want 1/3", v, max)
	}
	if !restored.IsWaiting() {
		t.Fatalf("status = %s, want waiting", restored.Status())
	}
	if err := restored.Cast(); err != nil {
		t.Fatal(err)
	}
	if kids := restored.Children(); len(kids) != 1 || kids[0].Ability().ID != 12 {
		t.Errorf("tap after restore spawned %v, want stage 12", kids)
	}
}

func TestRestore_Rejects(t *testing.T) {
	ability := &data.AbilityInfo{ID: 1, CastTime: ms(500)}
	h := newHarness(t, ability)
	c := h.cast(t, 1)
	h.run(ms(100), 1)
	good := c.Snapshot()

	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   error
	}{
		{"wrong caster", func(s *Snapshot) { s.CasterID = 999 }, ErrInvalidState},
		{"finished", func(s *Snapshot) { s.Status = StatusFinished }, ErrInvalidState},
		{"unknown ability", func(s *Snapshot) { s.AbilityID = 42 }, ErrUnknownAbility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := *good
			tt.mutate(&s)
			h2 := newHarness(t, ability)
			if _, err := h2.m.Restore(h2.player, &s); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(h2.m.Active()) != 0 {
				t.Errorf("rejected snapshot left a cast behind")
			}
		})
	}
}

func TestManager_SnapshotsSkipsTerminal(t *testing.T) {
	h := newHarness(t,
		&data.AbilityInfo{ID: 1},
		&data.AbilityInfo{ID: 2, CastMethod: data.CastAura},
	)
	h.cast(t, 1)
	h.run(ms(100), 1)
	aura := h.cast(t, 2)
	h.run(ms(100), 1)

	snaps := h.m.Snapshots()
	if len(snaps) != 1 || snaps[0].CastingID != aura.CastingID() {
		t.Fatalf("got %d snapshots, want only the aura", len(snaps))
	}
	if snaps[0].Status != StatusExecuting {
		t.Errorf("aura snapshot status = %s", snaps[0].Status)
	}
}
