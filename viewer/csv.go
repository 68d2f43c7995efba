package viewer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/activecm/rcr/report"

	"github.com/charmbracelet/bubbles/list"
)

// can pass in a search here so that users can export a filtered view from the cmdline
func GetCSVOutput(set report.ResultSet, search string, limit int) (string, error) {
	// parse the search input
	filter, parseErr := ParseSearchInput(search)
	if parseErr != "" {
		return "", fmt.Errorf("error parsing search input: %s", parseErr)
	}

	// default to 100 results if no limit is specified
	maxRows := 100
	if limit > 0 {
		maxRows = limit
	}

	// filter the loaded results
	items, _ := GetResults(set, filter)
	if len(items) > maxRows {
		items = items[:maxRows]
	}

	// format the results into CSV
	return FormatToCSV(items)

}

func FormatToCSV(items []list.Item) (string, error) {
	// define the columns for the CSV output
	columns := []string{
		"Log File",
		"IP Address",
		"Label",
		"RCR",
		"Coverage",
		"Clusters",
		"Outliers Removed",
		"Total Connections",
		"Insufficient Data",
		"Reason",
	}

	// loop over the results and format into rows and columns
	var data []string
	for _, row := range items {
		// get current row
		item, ok := row.(Item)
		if !ok {
			return "", fmt.Errorf("error casting item to Item")
		}

		// create a slice to hold the fields for this row
		fields := []string{
			item.LogFile, item.IP, item.Label,
			report.FormatScore(item.Score), item.GetCoverage(),
			fmt.Sprint(item.ClusterCount), fmt.Sprint(item.OutliersRemoved()),
			fmt.Sprint(item.RawCount), strconv.FormatBool(item.InsufficientData),
			fmt.Sprintf("\"%s\"", item.Reason),
		}

		// create comma-delimited string from each field in this row
		formattedRow := strings.Join(fields, ",")
		data = append(data, formattedRow)
	}

	// combine the columns and data into a CSV output
	csvOutput := []string{
		strings.Join(columns, ","),
		// print comma-delimited rows, one per line
		strings.Join(data, "\n"),
	}
	// print comma-delimited columns
	return strings.Join(csvOutput, "\n"), nil
}
