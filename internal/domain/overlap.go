package domain

// OverlapResolution is the outcome of applying the overlap policy to one batch.
type OverlapResolution struct {
	Kept    []Snapshot
	Dropped []Snapshot
}

// ResolveOverlap removes the snapshots of batch whose timestamps are already
// retained. Only two shapes are resolved: a retained timestamp at position 0
// alone (the leading snapshot is dropped), and a two-element batch that is
// retained entirely (both are dropped). Every other overlap returns an
// *OverlapError and nothing is kept.
func ResolveOverlap(id VariableIdentity, chunk string, retained func(ModelTime) bool, batch []Snapshot) (OverlapResolution, error) {
	var positions []int
	for i, s := range batch {
		if retained(s.Time) {
			positions = append(positions, i)
		}
	}

	switch {
	case len(positions) == 0:
		return OverlapResolution{Kept: batch}, nil
	case len(positions) == 1 && positions[0] == 0:
		return OverlapResolution{Kept: batch[1:], Dropped: batch[:1]}, nil
	case len(positions) == 2 && len(batch) == 2:
		return OverlapResolution{Dropped: batch}, nil
	}

	times := make([]ModelTime, len(positions))
	for i, p := range positions {
		times[i] = batch[p].Time
	}
	return OverlapResolution{}, &OverlapError{
		Identity:  id,
		Chunk:     chunk,
		Positions: positions,
		Times:     times,
		BatchLen:  len(batch),
	}
}
