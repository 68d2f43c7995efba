package viewer

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/activecm/rcr/analysis"
	"github.com/activecm/rcr/report"

	"github.com/charmbracelet/bubbles/list"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Item is one scored pair as displayed in the results list
type Item struct {
	analysis.Result
}

func (i Item) FilterValue() string { return i.Label } // no-op

func (i Item) GetLabel() string {
	return i.Label
}

func (i Item) GetScore() string {
	return renderScoreIndicator(i.Score)
}

func (i Item) GetCoverage() string {
	return report.FormatCoverage(i.Result)
}

func (i Item) GetClusters() string {
	return strconv.Itoa(i.ClusterCount)
}

func (i Item) GetSample() string {
	// set up language specific printer to keep large counts readable
	p := message.NewPrinter(language.English)
	return p.Sprint(i.RawCount)
}

func (i Item) GetLog() string { return i.LogFile }
func (i Item) GetIP() string  { return i.IP }

// GetResults applies the search filter to the loaded result set and returns
// the rows to display along with whether a search narrowed them
func GetResults(set report.ResultSet, filter Filter) ([]list.Item, bool) {
	var items []list.Item
	for _, result := range set.Results {
		item := Item{result}
		if filter.Matches(item) {
			items = append(items, item)
		}
	}

	sortItems(items, filter)

	return items, !filter.Empty()
}

// Matches reports whether a result passes every criterion in the filter
func (f Filter) Matches(item Item) bool {
	if f.Label != "" && !strings.Contains(strings.ToLower(item.Label), strings.ToLower(f.Label)) {
		return false
	}

	if f.IP != "" && item.IP != f.IP {
		return false
	}

	if f.Log != "" && !strings.Contains(strings.ToLower(item.LogFile), strings.ToLower(f.Log)) {
		return false
	}

	if f.Insufficient != "" && strconv.FormatBool(item.InsufficientData) != f.Insufficient {
		return false
	}

	score, scored := scoreValue(item)
	if !matchOperator(f.RCR, score, scored) {
		return false
	}

	coverage, covered := coverageValue(item)
	if !matchOperator(f.Coverage, coverage, covered) {
		return false
	}

	if !matchOperator(f.Clusters, float64(item.ClusterCount), true) {
		return false
	}

	if !matchOperator(f.Sample, float64(item.RawCount), true) {
		return false
	}

	return true
}

// Empty reports whether the filter has no criteria set
func (f Filter) Empty() bool {
	return f == Filter{}
}

// matchOperator compares a value against one operator criterion. Unscored
// values never match a set criterion, so flagged pairs drop out of numeric
// searches instead of posing as zero.
func matchOperator(filter OperatorFilter, value float64, scored bool) bool {
	if filter.Value == "" {
		return true
	}
	if !scored {
		return false
	}

	threshold, err := strconv.ParseFloat(filter.Value, 64)
	if err != nil {
		return false
	}

	switch filter.Operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	default:
		return value == threshold
	}
}

// sortItems orders the rows by the filter's sort column, leaving the
// (log file, destination IP) order from the results file when no sort is set
func sortItems(items []list.Item, filter Filter) {
	if filter.SortColumn == "" {
		return
	}

	desc := filter.SortDirection == "desc"

	slices.SortStableFunc(items, func(a, b list.Item) int {
		itemA, okA := a.(Item)
		itemB, okB := b.(Item)
		if !okA || !okB {
			return 0
		}

		valueA, scoredA := sortValue(itemA, filter.SortColumn)
		valueB, scoredB := sortValue(itemB, filter.SortColumn)

		// unscored pairs sink to the bottom no matter the direction
		switch {
		case !scoredA && !scoredB:
			return 0
		case !scoredA:
			return 1
		case !scoredB:
			return -1
		}

		if desc {
			return cmp.Compare(valueB, valueA)
		}
		return cmp.Compare(valueA, valueB)
	})
}

func sortValue(item Item, sortColumn string) (float64, bool) {
	switch sortColumn {
	case "rcr":
		return scoreValue(item)
	case "coverage":
		return coverageValue(item)
	case "clusters":
		return float64(item.ClusterCount), true
	case "sample":
		return float64(item.RawCount), true
	}
	return 0, false
}

func scoreValue(item Item) (float64, bool) {
	score := float64(item.Score)
	if math.IsNaN(score) {
		return 0, false
	}
	return score, true
}

func coverageValue(item Item) (float64, bool) {
	if item.TotalBuckets == 0 {
		return 0, false
	}
	return float64(item.FilledBuckets) / float64(item.TotalBuckets), true
}
