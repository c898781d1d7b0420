package event

import "testing"

type ping struct{ n int }
type pong struct{ n int }

func TestBus_DeliversNextTickInEmitOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e ping) { got = append(got, "ping") })
	Subscribe(b, func(e pong) { got = append(got, "pong") })

	Emit(b, ping{1})
	Emit(b, pong{1})
	Emit(b, ping{2})
	if b.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", b.Pending())
	}
	b.DispatchAll()
	if len(got) != 0 {
		t.Fatalf("delivered before swap: %v", got)
	}

	b.SwapBuffers()
	if b.Pending() != 0 {
		t.Errorf("back buffer not cleared by swap")
	}
	b.DispatchAll()
	want := []string{"ping", "pong", "ping"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBus_HandlerEmitsLandInNextTick(t *testing.T) {
	b := NewBus()
	pongs := 0
	Subscribe(b, func(e ping) {
		if e.n < 3 {
			Emit(b, ping{e.n + 1})
		}
	})
	Subscribe(b, func(pong) { pongs++ })

	Emit(b, ping{1})
	for tick := 1; tick <= 3; tick++ {
		b.SwapBuffers()
		b.DispatchAll()
		wantPending := 1
		if tick == 3 {
			wantPending = 0
		}
		if b.Pending() != wantPending {
			t.Errorf("tick %d: pending = %d, want %d", tick, b.Pending(), wantPending)
		}
	}
	if pongs != 0 {
		t.Errorf("unrelated handler ran %d times", pongs)
	}
}
