package detect

import "sort"

// Reconcile merges entities from multiple detectors into a non-conflicting
// set. Candidates are taken in ascending start order (ties keep input
// order); a candidate that overlaps an already accepted entity replaces it
// only on strictly higher confidence, so on equal confidence the incumbent
// wins.
//
// Only the FIRST overlapping incumbent is consulted. A candidate that loses
// to incumbent A stays suppressed even if it would have beaten a later
// incumbent B it also overlaps. Transitive overlap chains are out of scope.
func Reconcile(entities []Entity) []Entity {
	if len(entities) == 0 {
		return nil
	}

	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	accepted := make([]Entity, 0, len(sorted))
	for _, cand := range sorted {
		overlapped := false
		for i := range accepted {
			if cand.Overlaps(accepted[i]) {
				if cand.Confidence > accepted[i].Confidence {
					accepted[i] = cand
				}
				overlapped = true
				break
			}
		}
		if !overlapped {
			accepted = append(accepted, cand)
		}
	}

	// Replacement can shift spans, so restore start order before returning.
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// Merge concatenates entity lists from several detectors and reconciles
// the combined result.
func Merge(lists ...[]Entity) []Entity {
	var all []Entity
	for _, l := range lists {
		all = append(all, l...)
	}
	return Reconcile(all)
}
