package extractor

import (
	"testing"

	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/util"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestExtractSizes(t *testing.T) {
	records := []Record{
		ConnEntry{Dst: "165.227.88.15", OrigIPBytes: 4403},
		ConnEntry{Dst: "10.0.0.1", OrigIPBytes: 88},
		ConnEntry{Dst: "165.227.88.15", OrigIPBytes: -1},
		ConnEntry{Dst: "", OrigIPBytes: 500},
		ConnEntry{Dst: "165.227.88.15", OrigIPBytes: 0},
		ConnEntry{Dst: "165.227.88.15", OrigIPBytes: 4388},
	}

	sizes, malformed := ExtractSizes(records, "165.227.88.15")

	// the zero byte connection is a real observation and must be kept, only the
	// unset byte count and the record with no destination are malformed
	require.Equal(t, []float64{4403, 0, 4388}, sizes, "sizes should keep log order")
	require.EqualValues(t, 2, malformed)
}

func TestExtractSizesNoMatches(t *testing.T) {
	records := []Record{
		ConnEntry{Dst: "10.0.0.1", OrigIPBytes: 88},
		ConnEntry{Dst: "10.0.0.2", OrigIPBytes: 99},
	}

	sizes, malformed := ExtractSizes(records, "165.227.88.15")
	require.Empty(t, sizes)
	require.Zero(t, malformed)

	sizes, malformed = ExtractSizes(nil, "165.227.88.15")
	require.Empty(t, sizes)
	require.Zero(t, malformed)
}

func TestExtractSizesFromLog(t *testing.T) {
	afs := afero.NewOsFs()

	records, err := LoadConnRecords(afs, "../test_data/valid_tsv/conn.log")
	require.NoError(t, err)

	sizes, malformed := ExtractSizes(records, "165.227.88.15")
	require.Equal(t, []float64{4403, 4287, 4512, 4390, 4478, 4291}, sizes)
	require.EqualValues(t, 1, malformed, "the connection with unset byte counts should be counted as malformed")

	sizes, malformed = ExtractSizes(records, "159.65.77.234")
	require.Equal(t, []float64{1200, 1212, 1224, 1236, 1248}, sizes)
	require.Zero(t, malformed)
}

func TestResolveLogFiles(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/logs/conn.log", []byte("data"), 0o644))
	require.NoError(t, afero.WriteFile(afs, "/logs/conn_filtered.log.gz", []byte("data"), 0o644))
	require.NoError(t, afero.WriteFile(afs, "/logs/conn_empty.log", []byte{}, 0o644))

	cfg := &config.Config{InputData: map[string]config.LabelMap{
		"conn.log":          {"165.227.88.15": "baseline-web"},
		"conn_filtered.log": {"159.65.77.234": "suspect-beacon"},
		"conn_empty.log":    {"104.248.55.106": "quiet-host"},
	}}

	resolved, err := ResolveLogFiles(afs, cfg, "/logs")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"conn.log":          "/logs/conn.log",
		"conn_filtered.log": "/logs/conn_filtered.log.gz",
		"conn_empty.log":    "/logs/conn_empty.log",
	}, resolved, "rotated logs should resolve to their gzipped variant and empty logs should still resolve")
}

func TestResolveLogFilesMissing(t *testing.T) {
	afs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(afs, "/logs/conn.log", []byte("data"), 0o644))

	cfg := &config.Config{InputData: map[string]config.LabelMap{
		"conn.log": {"165.227.88.15": "baseline-web"},
		"dns.log":  {"8.8.8.8": "resolver"},
	}}

	resolved, err := ResolveLogFiles(afs, cfg, "/logs")
	require.ErrorIs(t, err, ErrMissingLogFiles)
	require.ErrorContains(t, err, "dns.log")
	require.ErrorContains(t, err, util.ErrFileDoesNotExist.Error())
	require.Nil(t, resolved)
}
