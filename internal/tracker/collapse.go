package tracker

// Collapse merges groups of mutually close hits into their coordinate-wise
// mean. Two hits belong to the same group when the later one falls inside
// the anchor's time window [anchor.T, anchor.T+ds.T] and inside the
// spatial tolerance box ds around the anchor.
//
// The scan walks the time-sorted event left to right. Points that fail
// the spatial check are left unmarked so they can seed their own cluster
// on a later pass of the scan; this prevents a point from being swallowed
// into its first-seen neighbor's mean when a closer-fitting cluster
// exists further on. Every input point contributes to exactly one output
// centroid, so the output is never larger than the input.
func Collapse(event Event, ds Point) Event {
	if len(event) == 0 {
		return nil
	}

	sorted := TimeSorted(event)
	size := len(sorted)
	used := make([]bool, size)
	out := make(Event, 0, size)

	for i := 0; i < size; i++ {
		if used[i] {
			continue
		}
		anchor := sorted[i]
		used[i] = true
		sum := anchor
		collected := 1
		window := anchor.T + ds.T

		for j := i + 1; j < size; j++ {
			if used[j] {
				continue
			}
			next := sorted[j]
			if next.T > window {
				break
			}
			if withinSpace(anchor, next, ds) {
				sum = sum.Add(next)
				collected++
				used[j] = true
			}
		}

		out = append(out, sum.Div(float64(collected)))
	}

	return out
}
