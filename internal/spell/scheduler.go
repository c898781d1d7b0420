package spell

import (
	"container/heap"
	"time"
)

type scheduledEvent struct {
	due   time.Duration
	seq   uint64
	every time.Duration // >0 re-arms after firing
	epoch uint64
	fn    func()
}

type eventQueue []*scheduledEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*scheduledEvent)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// Scheduler is the per-cast timed event queue. It keeps a virtual clock that
// only moves when Update or Skip is called. Events fire in due order, ties in
// enqueue order. While an event runs the clock reads its due time, so events
// it enqueues are measured from that instant and may fire in the same Update.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	epoch uint64
	live  int
	queue eventQueue
}

func NewScheduler() *Scheduler {
	return &Scheduler{queue: make(eventQueue, 0, 8)}
}

// Now returns the virtual time elapsed since the scheduler was created.
func (s *Scheduler) Now() time.Duration { return s.now }

// Enqueue runs fn once, delay after the current virtual time.
func (s *Scheduler) Enqueue(delay time.Duration, fn func()) {
	s.EnqueueAt(s.now+delay, fn)
}

// EnqueueAt runs fn once at the absolute virtual time due. A due time in the
// past fires on the next Update.
func (s *Scheduler) EnqueueAt(due time.Duration, fn func()) {
	s.push(&scheduledEvent{due: due, fn: fn})
}

// EnqueueRepeating runs fn delay from now and then every interval until
// CancelEvents is called.
func (s *Scheduler) EnqueueRepeating(delay, every time.Duration, fn func()) {
	s.EnqueueRepeatingAt(s.now+delay, every, fn)
}

// EnqueueRepeatingAt is EnqueueRepeating with an absolute first due time.
func (s *Scheduler) EnqueueRepeatingAt(first, every time.Duration, fn func()) {
	if every <= 0 {
		panic("spell: repeating event needs a positive interval")
	}
	s.push(&scheduledEvent{due: first, every: every, fn: fn})
}

func (s *Scheduler) push(ev *scheduledEvent) {
	s.seq++
	ev.seq = s.seq
	ev.epoch = s.epoch
	heap.Push(&s.queue, ev)
	s.live++
}

// Update advances the clock by dt and fires every event that became due.
func (s *Scheduler) Update(dt time.Duration) {
	target := s.now + dt
	for len(s.queue) > 0 {
		ev := s.queue[0]
		if ev.epoch != s.epoch {
			heap.Pop(&s.queue)
			continue
		}
		if ev.due > target {
			break
		}
		heap.Pop(&s.queue)
		s.live--
		if ev.due > s.now {
			s.now = ev.due
		}
		ev.fn()
		if ev.every > 0 && ev.epoch == s.epoch {
			ev.due += ev.every
			s.push(ev)
		}
	}
	s.now = target
}

// CancelEvents invalidates every pending event, including a repeating event
// that is firing right now. Canceled entries stay queued and are discarded
// when they reach the head.
func (s *Scheduler) CancelEvents() {
	s.epoch++
	s.live = 0
}

// HasPendingEvent reports whether any event can still fire.
func (s *Scheduler) HasPendingEvent() bool { return s.live > 0 }

// Pending returns the number of events that can still fire.
func (s *Scheduler) Pending() int { return s.live }

// Skip moves the clock to until without running anything. One-shot events
// due by then are dropped; repeating events are re-armed to their first due
// time after until.
func (s *Scheduler) Skip(until time.Duration) {
	if until <= s.now {
		return
	}
	var rearm []*scheduledEvent
	for len(s.queue) > 0 {
		ev := s.queue[0]
		if ev.epoch != s.epoch {
			heap.Pop(&s.queue)
			continue
		}
		if ev.due > until {
			break
		}
		heap.Pop(&s.queue)
		s.live--
		if ev.every > 0 {
			k := (until-ev.due)/ev.every + 1
			ev.due += k * ev.every
			rearm = append(rearm, ev)
		}
	}
	for _, ev := range rearm {
		s.push(ev)
	}
	s.now = until
}
