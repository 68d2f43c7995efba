package integration_test

import (
	"math"

	"github.com/activecm/rcr/analysis"

	"github.com/stretchr/testify/require"
)

// verify the known score for each generated traffic shape

func (it *EndToEndTestSuite) TestTightBeaconScore() {
	t := it.T()

	result := it.result("beacon-tight")
	require.Equal(t, 72, result.RawCount)
	require.Equal(t, 72, result.FilteredCount, "four byte jitter sits well inside three standard deviations")
	require.Equal(t, analysis.Span{Min: 900, Max: 908}, result.SampleSpan)
	require.Equal(t, 1, result.ClusterCount)
	require.Equal(t, analysis.Span{Min: 900, Max: 908}, result.SelectedRange)
	require.Equal(t, 1, result.TotalBuckets, "a range narrower than one bucket still gets a bucket")
	require.Equal(t, 1, result.FilledBuckets)
	require.Equal(t, []int{72}, result.BucketCounts)
	require.InDelta(t, 1.0, float64(result.Score), 0.001)
	require.False(t, result.InsufficientData)
}

func (it *EndToEndTestSuite) TestSpreadTrafficScore() {
	t := it.T()

	result := it.result("web-spread")
	require.Equal(t, 45, result.RawCount)
	require.Equal(t, 45, result.FilteredCount)
	require.Equal(t, 0, result.ClusterCount, "forty byte steps never land within the cluster width")
	require.Equal(t, analysis.Span{Min: 500, Max: 2260}, result.SelectedRange, "without clusters the whole sample is scored")
	require.Equal(t, 35, result.TotalBuckets)
	require.Zero(t, result.FilledBuckets, "one or two sizes per bucket never reaches the minimum count")
	require.Zero(t, float64(result.Score))
	require.False(t, result.InsufficientData)

	counted := 0
	for _, count := range result.BucketCounts {
		counted += count
	}
	require.Len(t, result.BucketCounts, 35)
	require.Equal(t, 45, counted, "every filtered size should land in a bucket")
}

func (it *EndToEndTestSuite) TestConstantPayloadSize() {
	t := it.T()

	result := it.result("constant-size")
	require.Equal(t, 30, result.RawCount)
	require.Equal(t, 30, result.FilteredCount, "zero spread means nothing can be an outlier")
	require.Equal(t, 1, result.ClusterCount)
	require.Equal(t, analysis.Span{Min: 512, Max: 512}, result.SelectedRange)
	require.Zero(t, result.TotalBuckets, "a zero-width range cannot be tiled")
	require.True(t, result.InsufficientData)
	require.Equal(t, "zero-width selected range", result.Reason)
	require.True(t, math.IsNaN(float64(result.Score)), "undefined coverage must not read as zero or one")
}

func (it *EndToEndTestSuite) TestAbsentHost() {
	t := it.T()

	result := it.result("absent-host")
	require.Zero(t, result.RawCount)
	require.True(t, result.InsufficientData)
	require.Equal(t, "no matching connections", result.Reason)
	require.True(t, math.IsNaN(float64(result.Score)))
}

func (it *EndToEndTestSuite) TestModalBeaconScore() {
	t := it.T()

	result := it.result("beacon-modal")
	require.Equal(t, 24, result.RawCount)
	require.Equal(t, 24, result.FilteredCount)
	require.Equal(t, 1, result.ClusterCount, "thirty byte steps sit exactly on the cluster width")
	require.Equal(t, analysis.Span{Min: 1000, Max: 1150}, result.SelectedRange)
	require.Equal(t, 3, result.TotalBuckets)
	require.Equal(t, 2, result.FilledBuckets)
	require.Equal(t, []int{11, 2, 11}, result.BucketCounts, "the thin middle bucket stays under the minimum count")
	require.InDelta(t, 2.0/3.0, float64(result.Score), 0.001)
	require.False(t, result.InsufficientData)
}

func (it *EndToEndTestSuite) TestOutlierClipping() {
	t := it.T()

	result := it.result("outlier-clipped")
	require.Equal(t, 42, result.RawCount)
	require.Equal(t, 40, result.FilteredCount)
	require.Equal(t, 2, result.OutliersRemoved(), "both huge uploads sit past three standard deviations")
	require.Equal(t, analysis.Span{Min: 800, Max: 30000}, result.SampleSpan)
	require.Equal(t, 1, result.ClusterCount)
	require.Equal(t, analysis.Span{Min: 800, Max: 824}, result.SelectedRange, "the selected range must not stretch to the dropped uploads")
	require.Equal(t, 1, result.TotalBuckets)
	require.Equal(t, []int{40}, result.BucketCounts)
	require.InDelta(t, 1.0, float64(result.Score), 0.001)
	require.False(t, result.InsufficientData)
}

func (it *EndToEndTestSuite) TestSparseSample() {
	t := it.T()

	result := it.result("sparse-sample")
	require.Equal(t, 1, result.RawCount)
	require.Equal(t, 1, result.FilteredCount)
	require.Equal(t, analysis.Span{Min: 777, Max: 777}, result.SampleSpan)
	require.Zero(t, result.ClusterCount)
	require.True(t, result.InsufficientData)
	require.Equal(t, "not enough payload sizes to select a range: need at least 2 sizes, have 1", result.Reason)
	require.True(t, math.IsNaN(float64(result.Score)))
}
