package tracker

// SeedsCompatible reports whether the trailing points of first, starting
// at offset difference, equal the leading points of second by value.
func SeedsCompatible(first, second Event, difference int) bool {
	overlap := len(first) - difference
	if overlap <= 0 || len(second) < overlap {
		return false
	}
	for i := 0; i < overlap; i++ {
		if first[difference+i] != second[i] {
			return false
		}
	}
	return true
}

// Join merges two seeds whose point sequences overlap: the trailing
// len(first)-difference points of first must literally equal the leading
// points of second. Returns nil when the seeds do not overlap at this
// difference. On success the joined sequence has difference+len(second)
// points with identity and order preserved; no resorting occurs.
func Join(first, second Event, difference int) Event {
	overlap := len(first) - difference
	if overlap <= 0 || len(second) < overlap {
		return nil
	}

	out := make(Event, 0, difference+len(second))
	out = append(out, first[:difference]...)
	for i := difference; i < difference+overlap; i++ {
		if first[i] != second[i-difference] {
			return nil
		}
		out = append(out, first[i])
	}
	out = append(out, second[overlap:]...)
	return out
}

// joinSecondaries joins the seed at indices[seedIndex] with every
// partner in indices that overlaps at the given difference, appending
// each joined seed to the buffer and recording its buffer index.
func joinSecondaries(seedIndex, difference int, buffer *[]Event, indices []int, joined []bool, out *[]int) {
	seed := (*buffer)[indices[seedIndex]]
	for i, index := range indices {
		merged := Join(seed, (*buffer)[index], difference)
		if merged == nil {
			continue
		}
		*buffer = append(*buffer, merged)
		*out = append(*out, len(*buffer)-1)
		joined[i] = true
		joined[seedIndex] = true
	}
}

// partialJoin processes one group of seed indices at the given overlap
// difference. Groups that produced joins push their merged seeds back
// onto the joined queue and their unmatched seeds onto the singular
// queue; groups with no joins are emitted as final.
func partialJoin(buffer *[]Event, indices []int, difference int, joinedQueue, singularQueue *[][]int, out *[]Event) {
	size := len(indices)
	if size == 0 {
		return
	}
	if size == 1 {
		// A lone seed has no partners at any difference.
		*out = append(*out, (*buffer)[indices[0]])
		return
	}

	joined := make([]bool, size)
	var toJoined, toSingular []int

	for index := range indices {
		joinSecondaries(index, difference, buffer, indices, joined, &toJoined)
	}

	if len(toJoined) > 0 {
		for i, flag := range joined {
			if !flag {
				toSingular = append(toSingular, indices[i])
			}
		}
		*joinedQueue = append(*joinedQueue, toJoined)
		if len(toSingular) > 0 {
			*singularQueue = append(*singularQueue, toSingular)
		}
		return
	}

	for _, index := range indices {
		*out = append(*out, (*buffer)[index])
	}
}

// JoinAll repeatedly merges overlapping seeds into longer candidate
// tracks until no further joins are possible. Freshly joined groups are
// retried at overlap difference 1; groups that found no partner are
// retried once more at difference 2 before being emitted, since an
// overlap cannot exceed the track length. Every input seed reaches the
// output, either merged or standalone.
func JoinAll(seeds []Event) []Event {
	size := len(seeds)
	if size == 0 {
		return nil
	}

	buffer := make([]Event, size, 2*size)
	copy(buffer, seeds)

	initial := make([]int, size)
	for i := range initial {
		initial[i] = i
	}

	out := make([]Event, 0, size)
	joinedQueue := [][]int{initial}
	var singularQueue [][]int

	for len(joinedQueue) > 0 || len(singularQueue) > 0 {
		if len(joinedQueue) > 0 {
			indices := joinedQueue[0]
			joinedQueue = joinedQueue[1:]
			partialJoin(&buffer, indices, 1, &joinedQueue, &singularQueue, &out)
		}
		if len(singularQueue) > 0 {
			indices := singularQueue[0]
			singularQueue = singularQueue[1:]
			partialJoin(&buffer, indices, 2, &joinedQueue, &singularQueue, &out)
		}
	}

	return out
}
