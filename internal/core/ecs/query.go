package ecs

// Each2 visits entities that carry both A and B, in the insertion order of sa.
func Each2[A, B any](sa *PtrComponentStore[A], sb *PtrComponentStore[B], fn func(EntityID, *A, *B)) {
	for i, id := range sa.ids {
		if b, ok := sb.Get(id); ok {
			fn(id, sa.items[i], b)
		}
	}
}
