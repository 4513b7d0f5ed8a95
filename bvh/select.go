package bvh

// selectNth reorders items so that items[n] holds the primitive that would
// sit at n if items were sorted by centroid on axis. Items before n are not
// greater, items after n are not smaller.
func selectNth(items []primitiveInfo, n, axis int) {
	lo, hi := 0, len(items)-1
	for lo < hi {
		pivot := medianOfThree(
			items[lo].centroid[axis],
			items[lo+(hi-lo)/2].centroid[axis],
			items[hi].centroid[axis],
		)

		// [lo,lt) < pivot, [lt,gt] == pivot, (gt,hi] > pivot
		lt, i, gt := lo, lo, hi
		for i <= gt {
			v := items[i].centroid[axis]
			switch {
			case v < pivot:
				items[lt], items[i] = items[i], items[lt]
				lt++
				i++
			case v > pivot:
				items[i], items[gt] = items[gt], items[i]
				gt--
			default:
				i++
			}
		}

		switch {
		case n < lt:
			hi = lt - 1
		case n > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

func medianOfThree(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}
