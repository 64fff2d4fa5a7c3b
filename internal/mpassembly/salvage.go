package mpassembly

import (
	"github.com/MeKo-Tech/osmpolygon/internal/geomkit"
	"github.com/paulmach/orb"
)

// salvageRing repairs a candidate ring that failed simplicity or validity by
// cutting out the smallest contiguous slice of coordinates whose removal
// leaves a simple, valid ring. It uses a double binary search, with an
// off-by-one correction: the boundary index is decremented/incremented when
// the search's final midpoint test comes back non-simple.
//
// Known limitation: this only salvages rings with a single
// self-intersection.
func salvageRing(adapter *geomkit.Adapter, coords []orb.Point) (orb.Ring, bool, error) {
	n := len(coords)
	if n < 4 {
		return nil, false, nil
	}

	cutStart, err := forwardCut(adapter, coords)
	if err != nil {
		return nil, false, err
	}
	cutEnd, err := backwardCut(adapter, coords)
	if err != nil {
		return nil, false, err
	}

	lo, hi := cutStart, cutEnd
	if lo > hi {
		lo, hi = hi, lo
	}

	var result []orb.Point
	if hi-lo > n/2 {
		result = append(result, coords[lo:hi]...)
		result = append(result, coords[lo])
	} else {
		result = append(result, coords[:lo]...)
		result = append(result, coords[hi:]...)
	}

	valid, err := adapter.IsValidRing(result)
	if err != nil {
		return nil, false, err
	}
	if !valid {
		return nil, false, nil
	}
	return orb.Ring(result), true, nil
}

// forwardCut finds the largest prefix length p in [0, n] such that
// coords[0:p] is a simple line string, via bisection.
func forwardCut(adapter *geomkit.Adapter, coords []orb.Point) (int, error) {
	n := len(coords)
	invBound, valBound := n, 0
	current := (invBound + valBound) / 2
	simple := false
	var err error

	for {
		simple, err = isSimplePrefix(adapter, coords, current)
		if err != nil {
			return 0, err
		}
		if !simple {
			invBound = current
		} else {
			valBound = current
		}
		next := (invBound + valBound) / 2
		if next == current {
			break
		}
		current = next
	}
	if !simple {
		current--
	}
	return current, nil
}

// backwardCut finds the smallest suffix start s in [0, n] such that
// coords[s:n] is a simple line string, via bisection.
func backwardCut(adapter *geomkit.Adapter, coords []orb.Point) (int, error) {
	n := len(coords)
	invBound, valBound := 0, n
	current := (invBound + valBound) / 2
	simple := false
	var err error

	for {
		simple, err = isSimpleSuffix(adapter, coords, current)
		if err != nil {
			return 0, err
		}
		if !simple {
			invBound = current
		} else {
			valBound = current
		}
		next := (invBound + valBound) / 2
		if next == current {
			break
		}
		current = next
	}
	if !simple {
		current++
	}
	return current, nil
}

func isSimplePrefix(adapter *geomkit.Adapter, coords []orb.Point, length int) (bool, error) {
	if length < 2 {
		return false, nil
	}
	return adapter.IsSimpleLineString(coords[:length])
}

func isSimpleSuffix(adapter *geomkit.Adapter, coords []orb.Point, start int) (bool, error) {
	if len(coords)-start < 2 {
		return false, nil
	}
	return adapter.IsSimpleLineString(coords[start:])
}
