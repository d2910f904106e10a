package tracker

// EventPartition buckets an event into ordered layers along one axis.
// Layers are ordered by increasing value of the partition coordinate;
// each layer is internally sorted by time.
type EventPartition struct {
	Axis   Coordinate
	Layers []Event
}

// Partition groups points into layers along the given axis. Consecutive
// points (in axis order) within interval of the layer's first point fall
// in the same layer; a gap larger than interval starts a new layer. Each
// layer is re-sorted by time before being returned, since downstream
// joining and fitting depend on time order. An empty input yields an
// empty partition.
func Partition(points Event, interval float64, axis Coordinate) EventPartition {
	out := EventPartition{Axis: axis}
	if len(points) == 0 {
		return out
	}

	sorted := sortedByComponent(points, axis)
	size := len(sorted)

	for index := 0; index < size; {
		first := sorted[index]
		layer := Event{first}
		index++
		for index < size && sorted[index].Component(axis) <= first.Component(axis)+interval {
			layer = append(layer, sorted[index])
			index++
		}
		out.Layers = append(out.Layers, SortByTime(layer))
	}

	return out
}
