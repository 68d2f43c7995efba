package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
)

var ErrInputSliceEmpty = errors.New("input slice must not be empty")
var ErrInsufficientData = errors.New("not enough payload sizes to select a range")

// Span is an inclusive payload size range [Min, Max]
type Span struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Width returns the distance covered by the span
func (s Span) Width() float64 {
	return s.Max - s.Min
}

// RCR is the range coverage ratio: the fraction of buckets across the
// selected payload size range that met the minimum occupancy. NaN marks a
// pair whose coverage is undefined (zero-width range), which is a distinct
// outcome from a coverage of 0 or 1 and must survive a trip through JSON,
// so NaN is encoded as null rather than rejected by the encoder.
type RCR float64

func (r RCR) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(r)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

func (r *RCR) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = RCR(math.NaN())
		return nil
	}
	var value float64
	if err := json.Unmarshal(b, &value); err != nil {
		return err
	}
	*r = RCR(value)
	return nil
}

// FilterOutliers removes payload sizes that sit more than zThreshold standard
// deviations away from the mean of the sample. A single huge upload in a
// stream of small beacon-sized requests would otherwise stretch the selected
// range far past the sizes the pair actually communicates in.
// The relative order of the surviving sizes is preserved.
func FilterOutliers(sample []float64, zThreshold float64) ([]float64, error) {
	// a z-score needs spread, with fewer than two points there is none
	if len(sample) < 2 {
		return sample, nil
	}

	mean, err := stats.Mean(sample)
	if err != nil {
		return nil, err
	}

	// the sample is the complete set of observed connections rather than a
	// draw from a larger population, so the population standard deviation
	// is the right denominator
	stdDev, err := stats.StandardDeviationPopulation(sample)
	if err != nil {
		return nil, err
	}

	// identical sizes have no spread, nothing can be an outlier
	if stdDev == 0 {
		return sample, nil
	}

	filtered := make([]float64, 0, len(sample))
	for _, size := range sample {
		if math.Abs(size-mean) <= zThreshold*stdDev {
			filtered = append(filtered, size)
		}
	}

	return filtered, nil
}

// SelectRange picks the payload size range the pair most consistently
// communicates in. The sizes are sorted and partitioned into clusters by
// splitting wherever the gap between neighboring sizes exceeds clusterWidth,
// e.g. [100, 105, 112, 400, 408] with a width of 20 splits into [100, 105, 112]
// and [400, 408]. Clusters with fewer than minClusterSize members are noise
// and are discarded. Of the surviving clusters the one with the most members
// wins; ties go to the narrower cluster, and if the spans are also equal, to
// the one covering the smaller sizes, so selection never depends on sort
// stability. The returned count is the number of surviving clusters. When no
// cluster survives, the span of the whole sample is returned with a count of
// zero so scoring still has a range to work with.
func SelectRange(sizes []float64, clusterWidth float64, minClusterSize int) (Span, int, error) {
	// one size cannot form a range
	if len(sizes) < 2 {
		return Span{}, 0, fmt.Errorf("%w: need at least 2 sizes, have %d", ErrInsufficientData, len(sizes))
	}

	// cluster on a sorted copy, callers rely on their slice keeping log order
	sorted := make([]float64, len(sizes))
	copy(sorted, sizes)
	slices.Sort(sorted)

	var (
		clusterCount int
		bestFound    bool
		bestMembers  int
		bestSpan     Span
	)

	// walk the sorted sizes, closing off a cluster at every gap wider than
	// clusterWidth; the trailing cluster is closed by the bound check
	clusterStart := 0
	for end := 1; end <= len(sorted); end++ {
		if end < len(sorted) && sorted[end]-sorted[end-1] <= clusterWidth {
			continue
		}

		members := end - clusterStart
		span := Span{Min: sorted[clusterStart], Max: sorted[end-1]}
		clusterStart = end

		// too few members, noise
		if members < minClusterSize {
			continue
		}
		clusterCount++

		// more members wins, then the narrower span; on a full tie the
		// earlier cluster stands since the walk ascends
		if !bestFound || members > bestMembers ||
			(members == bestMembers && span.Width() < bestSpan.Width()) {
			bestFound = true
			bestMembers = members
			bestSpan = span
		}
	}

	if !bestFound {
		return Span{Min: sorted[0], Max: sorted[len(sorted)-1]}, 0, nil
	}

	return bestSpan, clusterCount, nil
}

// ScoreRange tiles the selected range into buckets of width bucketSize and
// counts how many sizes land in each. Buckets are left-inclusive and
// right-exclusive except the last, which is widened to absorb the remainder
// of the span and its upper edge, e.g. a range of [10, 15] with a bucket size
// of 10 yields the single bucket [10, 15] rather than [10, 20) plus an empty
// tail. Sizes outside the range are not counted. The returned values are the
// total bucket count, the number of buckets whose count reached
// minBucketCount, the per-bucket counts, and the range coverage ratio
// (filled over total). A zero-width range has no buckets to fill, so its
// coverage is NaN rather than 0 or 1.
func ScoreRange(sizes []float64, selected Span, bucketSize float64, minBucketCount int) (int, int, []int, float64, error) {
	// ensure that the input slice is not empty
	if len(sizes) == 0 {
		return 0, 0, nil, 0, ErrInputSliceEmpty
	}

	// ensure that the bucket size and range are valid
	if bucketSize <= 0 {
		return 0, 0, nil, 0, fmt.Errorf("bucket size must be positive, got %g", bucketSize)
	}
	if selected.Max < selected.Min {
		return 0, 0, nil, 0, fmt.Errorf("invalid range: min %g is greater than max %g", selected.Min, selected.Max)
	}

	span := selected.Width()
	totalBuckets := int(span / bucketSize)

	// a range narrower than one bucket still deserves a bucket
	if totalBuckets == 0 && span > 0 {
		totalBuckets = 1
	}

	// a zero width range cannot be tiled at all
	if totalBuckets == 0 {
		return 0, 0, nil, math.NaN(), nil
	}

	counts := make([]int, totalBuckets)
	for _, size := range sizes {
		if size < selected.Min || size > selected.Max {
			continue
		}

		bucket := int((size - selected.Min) / bucketSize)

		// the last bucket absorbs the remainder of the span and its own
		// upper edge
		if bucket >= totalBuckets {
			bucket = totalBuckets - 1
		}
		counts[bucket]++
	}

	filled := 0
	for _, count := range counts {
		if count >= minBucketCount {
			filled++
		}
	}

	return totalBuckets, filled, counts, float64(filled) / float64(totalBuckets), nil
}
