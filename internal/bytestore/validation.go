package bytestore

import (
	"fmt"
	"sort"
)

// NamedRange is a range owned by a named tensor.
type NamedRange struct {
	Name string
	Range
}

// ValidateRanges checks that every range is non-negative, lies inside a store
// of storeSize bytes, and does not overlap any other range.
// Zero-length ranges never overlap.
func ValidateRanges(ranges []NamedRange, storeSize int64) error {
	sorted := make([]NamedRange, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	var (
		prev    NamedRange
		hasPrev bool
	)
	for _, r := range sorted {
		if r.Offset < 0 || r.Length < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  r.Name,
				Details: fmt.Sprintf("offset=%d, length=%d (negative values not allowed)", r.Offset, r.Length),
			}
		}

		if r.Length > storeSize-r.Offset {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  r.Name,
				Details: fmt.Sprintf("offset %d + length %d > store size %d", r.Offset, r.Length, storeSize),
			}
		}

		if r.Length == 0 {
			continue
		}
		if hasPrev && prev.End() > r.Offset {
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  prev.Name,
				Tensor2: r.Name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					prev.Offset, prev.End(), r.Offset, r.End()),
			}
		}
		if !hasPrev || r.End() > prev.End() {
			prev, hasPrev = r, true
		}
	}

	return nil
}
