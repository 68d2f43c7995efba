package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/extractor"
	"github.com/activecm/rcr/util"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const analyzerTestConfig = `{
	input_directory: /logs
	analysis_params: {
		z_threshold: 2.5
		min_cluster_size: 5
		cluster_width: 30
		bucket_size: 10
		min_bucket_count: 2
	}
	input_data: {
		conn_a.log: {
			"159.65.77.234": "beacon-sim"
			"165.227.88.15": "constant-size"
		}
		conn_b.log: {
			"104.248.55.106": "sparse-host"
			"8.8.8.8": "absent-host"
		}
	}
}`

// writeAnalyzerTestLogs lays down two JSON conn logs: one with a jittered
// beacon plus a constant-size talker, one with a sparse host
func writeAnalyzerTestLogs(t *testing.T, afs afero.Fs) {
	t.Helper()

	var linesA []string
	// twenty connections sweeping 1200..1295 in steps of five
	for i := 0; i < 20; i++ {
		linesA = append(linesA, fmt.Sprintf(
			`{"ts":%f,"uid":"Ca%02d","id.orig_h":"10.55.100.100","id.orig_p":%d,"id.resp_h":"159.65.77.234","id.resp_p":443,"proto":"tcp","orig_ip_bytes":%d}`,
			1715910000.0+float64(i*30), i, 49000+i, 1200+5*i))
	}
	// six connections that always send the same number of bytes
	for i := 0; i < 6; i++ {
		linesA = append(linesA, fmt.Sprintf(
			`{"ts":%f,"uid":"Cb%02d","id.orig_h":"10.55.100.100","id.orig_p":%d,"id.resp_h":"165.227.88.15","id.resp_p":443,"proto":"tcp","orig_ip_bytes":4400}`,
			1715910700.0+float64(i*30), i, 51000+i))
	}
	require.NoError(t, afero.WriteFile(afs, "/logs/conn_a.log", []byte(strings.Join(linesA, "\n")+"\n"), 0o644))

	linesB := []string{
		`{"ts":1715911000.1,"uid":"Cc00","id.orig_h":"10.55.100.101","id.orig_p":52000,"id.resp_h":"104.248.55.106","id.resp_p":443,"proto":"tcp","orig_ip_bytes":900}`,
		`{"ts":1715911030.2,"uid":"Cc01","id.orig_h":"10.55.100.101","id.orig_p":52001,"id.resp_h":"104.248.55.106","id.resp_p":443,"proto":"tcp","orig_ip_bytes":910}`,
		`{"ts":1715911060.3,"uid":"Cc02","id.orig_h":"10.55.100.101","id.orig_p":52002,"id.resp_h":"104.248.55.106","id.resp_p":443,"proto":"tcp","orig_ip_bytes":2000}`,
	}
	require.NoError(t, afero.WriteFile(afs, "/logs/conn_b.log", []byte(strings.Join(linesB, "\n")+"\n"), 0o644))
}

func TestAnalyzerRun(t *testing.T) {
	afs := afero.NewMemMapFs()
	writeAnalyzerTestLogs(t, afs)
	require.NoError(t, afero.WriteFile(afs, "/config.hjson", []byte(analyzerTestConfig), 0o644))

	cfg, err := config.ReadFileConfig(afs, "/config.hjson")
	require.NoError(t, err)

	logFiles, err := extractor.ResolveLogFiles(afs, cfg, cfg.InputDirectory)
	require.NoError(t, err)

	analyzer := NewAnalyzer(afs, cfg, logFiles)
	require.GreaterOrEqual(t, analyzer.AnalysisWorkers, 1)
	require.LessOrEqual(t, analyzer.AnalysisWorkers, len(cfg.Pairs))

	results, err := analyzer.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)

	// results come back ordered by (log file, destination IP)
	beacon := results[0]
	require.Equal(t, "conn_a.log", beacon.LogFile)
	require.Equal(t, "159.65.77.234", beacon.IP)
	require.Equal(t, "beacon-sim", beacon.Label)
	require.NotEqual(t, util.FixedString{}, beacon.ID)
	require.Equal(t, 20, beacon.RawCount)
	require.Equal(t, 20, beacon.FilteredCount, "an even sweep has no outliers")
	require.Equal(t, Span{Min: 1200, Max: 1295}, beacon.SampleSpan)
	require.Equal(t, 1, beacon.ClusterCount)
	require.Equal(t, Span{Min: 1200, Max: 1295}, beacon.SelectedRange)
	require.Equal(t, 9, beacon.TotalBuckets)
	require.Equal(t, 9, beacon.FilledBuckets)
	require.Equal(t, []int{2, 2, 2, 2, 2, 2, 2, 2, 4}, beacon.BucketCounts)
	require.InDelta(t, 1.0, float64(beacon.Score), 0.001, "full coverage of the selected range")
	require.False(t, beacon.InsufficientData)

	constant := results[1]
	require.Equal(t, "165.227.88.15", constant.IP)
	require.Equal(t, 6, constant.RawCount)
	require.Equal(t, 6, constant.FilteredCount)
	require.Equal(t, Span{Min: 4400, Max: 4400}, constant.SampleSpan)
	require.Equal(t, 1, constant.ClusterCount)
	require.Equal(t, Span{Min: 4400, Max: 4400}, constant.SelectedRange)
	require.Zero(t, constant.TotalBuckets)
	require.True(t, constant.InsufficientData)
	require.Equal(t, "zero-width selected range", constant.Reason)
	require.True(t, math.IsNaN(float64(constant.Score)))

	sparse := results[2]
	require.Equal(t, "conn_b.log", sparse.LogFile)
	require.Equal(t, "104.248.55.106", sparse.IP)
	require.Equal(t, 3, sparse.RawCount)
	require.Equal(t, 3, sparse.FilteredCount)
	require.Equal(t, Span{Min: 900, Max: 2000}, sparse.SampleSpan)
	require.Zero(t, sparse.ClusterCount, "no run reaches min_cluster_size, so the range falls back to the full span")
	require.Equal(t, Span{Min: 900, Max: 2000}, sparse.SelectedRange)
	require.Equal(t, 110, sparse.TotalBuckets)
	require.Zero(t, sparse.FilledBuckets)
	require.Len(t, sparse.BucketCounts, 110)
	require.InDelta(t, 0.0, float64(sparse.Score), 0.001, "low coverage is a real score, not insufficient data")
	require.False(t, sparse.InsufficientData)

	absent := results[3]
	require.Equal(t, "8.8.8.8", absent.IP)
	require.Zero(t, absent.RawCount)
	require.Zero(t, absent.SampleSpan)
	require.True(t, absent.InsufficientData)
	require.Equal(t, "no matching connections", absent.Reason)
	require.True(t, math.IsNaN(float64(absent.Score)))
}

func TestAnalyzerRunDeterministic(t *testing.T) {
	afs := afero.NewMemMapFs()
	writeAnalyzerTestLogs(t, afs)

	cfg := &config.Config{
		InputDirectory: "/logs",
		Analysis: config.AnalysisParams{
			ZScoreThreshold: 2.5,
			MinClusterSize:  5,
			ClusterWidth:    30,
			BucketSize:      10,
			MinBucketCount:  2,
		},
		InputData: map[string]config.LabelMap{
			"conn_a.log": {"159.65.77.234": "beacon-sim"},
			"conn_b.log": {"104.248.55.106": "sparse-host"},
		},
		Pairs: []config.Pair{
			{LogFile: "conn_a.log", IP: "159.65.77.234", Label: "beacon-sim"},
			{LogFile: "conn_b.log", IP: "104.248.55.106", Label: "sparse-host"},
		},
	}

	logFiles := map[string]string{
		"conn_a.log": "/logs/conn_a.log",
		"conn_b.log": "/logs/conn_b.log",
	}

	first, err := NewAnalyzer(afs, cfg, logFiles).Run(context.Background())
	require.NoError(t, err)
	second, err := NewAnalyzer(afs, cfg, logFiles).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, first, second, "identical input must produce identical results regardless of scheduling")
}

func TestAnalyzerRunUnreadableLogs(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/logs/garbage.log", []byte("definitely not a zeek log\nstill not one\n"), 0o644))

	cfg := &config.Config{
		InputDirectory: "/logs",
		Analysis: config.AnalysisParams{
			ZScoreThreshold: 2.5,
			MinClusterSize:  5,
			ClusterWidth:    30,
			BucketSize:      10,
			MinBucketCount:  2,
		},
		InputData: map[string]config.LabelMap{
			"garbage.log": {"165.227.88.15": "junk-log"},
			"missing.log": {"159.65.77.234": "gone-log"},
		},
		Pairs: []config.Pair{
			{LogFile: "garbage.log", IP: "165.227.88.15", Label: "junk-log"},
			{LogFile: "missing.log", IP: "159.65.77.234", Label: "gone-log"},
		},
	}

	logFiles := map[string]string{
		"garbage.log": "/logs/garbage.log",
		"missing.log": "/logs/missing.log",
	}

	// an unreadable log flags its pairs but never fails the run
	results, err := NewAnalyzer(afs, cfg, logFiles).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, result := range results {
		require.True(t, result.InsufficientData)
		require.Contains(t, result.Reason, "unable to read log")
		require.Zero(t, result.RawCount)
		require.True(t, math.IsNaN(float64(result.Score)))
	}
}

func TestResultOutliersRemoved(t *testing.T) {
	result := Result{RawCount: 21, FilteredCount: 20}
	require.Equal(t, 1, result.OutliersRemoved())
}
