package event

import "github.com/l1jgo/spellengine/internal/core/ecs"

// World-side events. Spell notifications live in the spell package.

// UnitMoved is emitted when a unit changes position by its own action.
// Casts that cannot be channelled on the move are interrupted by it.
type UnitMoved struct {
	EntityID ecs.EntityID
	X, Y, Z  float64
}

// UnitDespawned is emitted after an entity has been removed from the world.
type UnitDespawned struct {
	EntityID ecs.EntityID
}

// UnitDied is emitted when damage brings a unit to zero health.
type UnitDied struct {
	EntityID ecs.EntityID
	KillerID ecs.EntityID
}
