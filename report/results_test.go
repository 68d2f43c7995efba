package report

import (
	"math"
	"testing"
	"time"

	"github.com/activecm/rcr/analysis"
	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/util"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// sampleResultSet builds one scored pair and one flagged pair, which covers
// both score encodings in the results file
func sampleResultSet(t *testing.T) ResultSet {
	t.Helper()

	beaconID, err := util.NewFixedStringHash("conn_a.log", "159.65.77.234", "beacon-sim")
	require.NoError(t, err)
	absentID, err := util.NewFixedStringHash("conn_a.log", "8.8.8.8", "absent-host")
	require.NoError(t, err)

	results := []analysis.Result{
		{
			ID:             beaconID,
			LogFile:        "conn_a.log",
			IP:             "159.65.77.234",
			Label:          "beacon-sim",
			RawCount:       1221,
			MalformedCount: 1,
			FilteredCount:  1220,
			SampleSpan:     analysis.Span{Min: 1200, Max: 150000},
			ClusterCount:   1,
			SelectedRange:  analysis.Span{Min: 1200, Max: 1295},
			TotalBuckets:   9,
			FilledBuckets:  8,
			BucketCounts:   []int{150, 150, 150, 150, 150, 150, 150, 1, 169},
			Score:          analysis.RCR(8.0 / 9.0),
		},
		{
			ID:               absentID,
			LogFile:          "conn_a.log",
			IP:               "8.8.8.8",
			Label:            "absent-host",
			Score:            analysis.RCR(math.NaN()),
			InsufficientData: true,
			Reason:           "no matching connections",
		},
	}

	return NewResultSet(config.AnalysisParams{
		ZScoreThreshold: 2.5,
		MinClusterSize:  5,
		ClusterWidth:    30,
		BucketSize:      10,
		MinBucketCount:  2,
	}, results)
}

func TestNewResultSet(t *testing.T) {
	set := sampleResultSet(t)

	require.Equal(t, resultsVersion, set.Version)
	require.NotEmpty(t, set.RunID.String())
	require.WithinDuration(t, time.Now(), set.GeneratedAt, 5*time.Second)
	require.Equal(t, time.UTC, set.GeneratedAt.Location(), "timestamps are stored in UTC")
	require.Len(t, set.Results, 2)
}

func TestResultSetRoundTrip(t *testing.T) {
	afs := afero.NewMemMapFs()
	set := sampleResultSet(t)

	require.NoError(t, set.WriteJSON(afs, "results.json"))

	// the unscored pair must be encoded as null, not as NaN
	data, err := afero.ReadFile(afs, "results.json")
	require.NoError(t, err)
	require.Contains(t, string(data), `"rcr": null`)
	require.Contains(t, string(data), set.Results[0].ID.Hex())

	loaded, err := LoadResults(afs, "results.json")
	require.NoError(t, err)

	require.Equal(t, set.Version, loaded.Version)
	require.Equal(t, set.RunID, loaded.RunID)
	require.Equal(t, set.GeneratedAt, loaded.GeneratedAt)
	require.Equal(t, set.Params, loaded.Params)
	require.Len(t, loaded.Results, 2)
	require.Equal(t, set.Results[0], loaded.Results[0])

	// NaN never compares equal to itself, so check the flagged pair's score
	// separately from its other fields
	want, got := set.Results[1], loaded.Results[1]
	require.True(t, math.IsNaN(float64(got.Score)))
	want.Score = 0
	got.Score = 0
	require.Equal(t, want, got)
}

func TestLoadResultsVersionMismatch(t *testing.T) {
	afs := afero.NewMemMapFs()
	set := sampleResultSet(t)
	set.Version = 99

	require.NoError(t, set.WriteJSON(afs, "results.json"))

	_, err := LoadResults(afs, "results.json")
	require.ErrorContains(t, err, "version 99")
}

func TestLoadResultsMissingFile(t *testing.T) {
	afs := afero.NewMemMapFs()

	_, err := LoadResults(afs, "nope.json")
	require.ErrorIs(t, err, util.ErrFileDoesNotExist)
}

func TestLoadResultsMalformed(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "bad.json", []byte("{not json"), 0o644))

	_, err := LoadResults(afs, "bad.json")
	require.ErrorContains(t, err, "could not parse results file")
}

func TestMedianSampleSize(t *testing.T) {
	require.Zero(t, ResultSet{}.MedianSampleSize())

	set := ResultSet{Results: []analysis.Result{
		{RawCount: 3},
		{RawCount: 20},
		{RawCount: 6},
	}}
	require.InDelta(t, 6, set.MedianSampleSize(), 0.001)

	set.Results = append(set.Results, analysis.Result{RawCount: 40})
	require.InDelta(t, 13, set.MedianSampleSize(), 0.001, "even-sized sets average the middle pair")
}
