package escrow

import "math/big"

// scheduleSlopeChange adds slope to the change scheduled at p.
func scheduleSlopeChange(st Store, slope *big.Rat, p Period) error {
	if slope.Sign() == 0 {
		return nil
	}
	existing, ok, err := st.SlopeChange(p)
	if err != nil {
		return err
	}
	if ok {
		slope = addRat(existing, slope)
	}
	return st.SaveSlopeChange(p, slope)
}

// cancelScheduledSlope removes slope from the change scheduled at p.
// Changes at or before the cursor were already folded into the global chain
// and are left alone.
func cancelScheduledSlope(st Store, slope *big.Rat, p Period) error {
	if slope.Sign() == 0 {
		return nil
	}
	cursor, _, err := st.SlopeCursor()
	if err != nil {
		return err
	}
	if p <= cursor {
		return nil
	}
	existing, ok, err := st.SlopeChange(p)
	if err != nil || !ok {
		return err
	}
	remaining := subSat(existing, slope)
	if remaining.Sign() == 0 {
		return st.RemoveSlopeChange(p)
	}
	return st.SaveSlopeChange(p, remaining)
}

// catchUp folds every change scheduled in (after, through] into pt, in
// increasing period order. When persist is set each intermediate global
// point is written.
func catchUp(r Reader, pt Point, after, through Period, persist func(Point) error) (Point, error) {
	changes, err := r.SlopeChanges(after, through)
	if err != nil {
		return Point{}, err
	}
	for _, change := range changes {
		pt = Point{
			Power: valueAt(pt, change.Period),
			Slope: subSat(pt.Slope, change.Slope),
			Start: change.Period,
		}
		if persist != nil {
			if err := persist(pt); err != nil {
				return Point{}, err
			}
		}
	}
	return pt, nil
}
