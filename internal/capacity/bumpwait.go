// Package capacity enforces vehicle capacity: bump-stop selection,
// bump candidate ordering, and the BumpWait registry's insert-or-min
// monotone update.
package capacity

import "github.com/transitworks/tripassign/internal/model"

// BumpWaitRegistry is the map (trip_id, sequence, stop_id) ->
// earliest_arrival_time_of_bumped_passenger, monotone per key: updates
// take the minimum across iterations.
type BumpWaitRegistry struct {
	entries map[model.BumpWaitKey]float64
}

// NewBumpWaitRegistry returns an empty registry.
func NewBumpWaitRegistry() *BumpWaitRegistry {
	return &BumpWaitRegistry{entries: make(map[model.BumpWaitKey]float64)}
}

// Merge folds (key, atime) into the registry, keeping the minimum
// atime seen for each key so far.
func (r *BumpWaitRegistry) Merge(key model.BumpWaitKey, atime float64) {
	if prev, ok := r.entries[key]; !ok || atime < prev {
		r.entries[key] = atime
	}
}

// Get returns the registry's value for key.
func (r *BumpWaitRegistry) Get(key model.BumpWaitKey) (float64, bool) {
	v, ok := r.entries[key]
	return v, ok
}

// Keys returns the registry's keys and values as parallel slices,
// suitable for supply.Store.SetBumpWait.
func (r *BumpWaitRegistry) Keys() ([]model.BumpWaitKey, []float64) {
	keys := make([]model.BumpWaitKey, 0, len(r.entries))
	times := make([]float64, 0, len(r.entries))
	for k, v := range r.entries {
		keys = append(keys, k)
		times = append(times, v)
	}
	return keys, times
}

// Len reports the registry's size.
func (r *BumpWaitRegistry) Len() int { return len(r.entries) }
