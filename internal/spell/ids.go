package spell

// IDAllocator hands out casting ids and effect application ids.
// Both sequences start at 1; 0 means "none" on the wire.
type IDAllocator struct {
	casting uint32
	effect  uint32
}

func NewIDAllocator() *IDAllocator { return &IDAllocator{} }

func (a *IDAllocator) NextCastingID() uint32 {
	a.casting++
	return a.casting
}

func (a *IDAllocator) NextEffectID() uint32 {
	a.effect++
	return a.effect
}

// ObserveCastingID makes sure future casting ids stay above id. Used when
// casts are restored from snapshots.
func (a *IDAllocator) ObserveCastingID(id uint32) {
	if id > a.casting {
		a.casting = id
	}
}

// ObserveEffectID is ObserveCastingID for effect application ids.
func (a *IDAllocator) ObserveEffectID(id uint32) {
	if id > a.effect {
		a.effect = id
	}
}
