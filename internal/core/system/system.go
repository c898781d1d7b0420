package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain cast/tap/cancel requests
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: advance casts
	PhasePostUpdate              // 3: late update, finish detection
	PhaseOutput                  // 4: notifications to observers
	PhasePersist                 // 5: snapshot + cooldown save
	PhaseCleanup                 // 6: destroy queued entities
)

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
