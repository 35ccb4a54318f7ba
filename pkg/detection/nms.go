package detection

import (
	"sort"

	"github.com/menta2k/uwuifier/pkg/types"
)

// NMS performs greedy non-maximum suppression: boxes are visited by
// descending confidence and dropped when they overlap a kept box by more
// than iouThreshold.
func NMS(boxes []types.BoundingBox, iouThreshold float64) []types.BoundingBox {
	if len(boxes) < 2 {
		return boxes
	}

	sorted := make([]types.BoundingBox, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]types.BoundingBox, 0, len(sorted))
	for _, b := range sorted {
		suppressed := false
		for _, k := range kept {
			if b.IoU(k) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}
