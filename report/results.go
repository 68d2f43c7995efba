// Package report persists a finished analysis run. It renders the ordered
// results to a standalone HTML report and writes the machine-readable
// results JSON alongside it for the view command to load later.
package report

import (
	"fmt"
	"time"

	"github.com/activecm/rcr/analysis"
	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/util"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/montanaflynn/stats"
	"github.com/spf13/afero"
)

// resultsVersion guards the results file against being loaded by an
// incompatible release
const resultsVersion = 1

const (
	// DefaultReportName is the report path used when --out is not given
	DefaultReportName = "results.html"
)

// ResultSet ties one run's scored pairs to the parameters that produced them
type ResultSet struct {
	Version     int                   `json:"version"`
	RunID       uuid.UUID             `json:"run_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Params      config.AnalysisParams `json:"analysis_params"`
	Results     []analysis.Result     `json:"results"`
}

// NewResultSet stamps a fresh run ID and timestamp onto a finished run
func NewResultSet(params config.AnalysisParams, results []analysis.Result) ResultSet {
	return ResultSet{
		Version:     resultsVersion,
		RunID:       uuid.New(),
		GeneratedAt: time.Now().UTC(),
		Params:      params,
		Results:     results,
	}
}

// MedianSampleSize returns the median connection count across all pairs,
// counting flagged pairs as well so thin runs read as thin
func (set ResultSet) MedianSampleSize() float64 {
	if len(set.Results) == 0 {
		return 0
	}

	counts := make([]float64, 0, len(set.Results))
	for _, result := range set.Results {
		counts = append(counts, float64(result.RawCount))
	}

	median, err := stats.Median(counts)
	if err != nil {
		return 0
	}
	return median
}

// WriteJSON saves the result set to path. Unscored pairs carry a null score,
// which LoadResults turns back into NaN.
func (set ResultSet) WriteJSON(afs afero.Fs, path string) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(set, "", "    ")
	if err != nil {
		return fmt.Errorf("could not marshal results: %w", err)
	}

	if err := afero.WriteFile(afs, path, data, 0o644); err != nil {
		return fmt.Errorf("could not write results to %s: %w", path, err)
	}

	return nil
}

// LoadResults reads a results file produced by WriteJSON
func LoadResults(afs afero.Fs, path string) (ResultSet, error) {
	// make sure the file exists and is non-empty
	contents, err := util.GetFileContents(afs, path)
	if err != nil {
		return ResultSet{}, err
	}

	var set ResultSet
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(contents, &set); err != nil {
		return ResultSet{}, fmt.Errorf("could not parse results file %s: %w", path, err)
	}

	if set.Version != resultsVersion {
		return ResultSet{}, fmt.Errorf("results file %s has version %d, expected %d", path, set.Version, resultsVersion)
	}

	return set, nil
}
