package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"time"

	"github.com/activecm/rcr/analysis"
	"github.com/activecm/rcr/util"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/afero"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	chartHeight      = 10
	reportChartWidth = 72
)

// set up language specific printer for connection counts
var printer = message.NewPrinter(language.English)

// ParamRow is one line of the report's analysis-parameters table
type ParamRow struct {
	Name        string
	Value       string
	Description string
}

// ParamRows flattens the effective parameters into the report's parameter
// table, one row per tunable
func (set ResultSet) ParamRows() []ParamRow {
	return []ParamRow{
		{"z_threshold", strconv.FormatFloat(set.Params.ZScoreThreshold, 'g', -1, 64), "Z-score above which a payload size is discarded as an outlier"},
		{"min_cluster_size", strconv.Itoa(set.Params.MinClusterSize), "Smallest run of nearby payload sizes that counts as a cluster"},
		{"cluster_width", strconv.FormatFloat(set.Params.ClusterWidth, 'g', -1, 64), "Largest gap in bytes between neighboring sizes in one cluster"},
		{"bucket_size", strconv.FormatFloat(set.Params.BucketSize, 'g', -1, 64), "Width in bytes of each histogram bucket across the selected range"},
		{"min_bucket_count", strconv.Itoa(set.Params.MinBucketCount), "Connections a bucket needs before it counts toward coverage"},
	}
}

// FormatScore renders an RCR as a percentage, or N/A for a pair that could
// not be scored
func FormatScore(score analysis.RCR) string {
	if math.IsNaN(float64(score)) {
		return "N/A"
	}
	return fmt.Sprintf("%1.2f%%", float64(score)*100)
}

// FormatCoverage renders filled buckets over total buckets
func FormatCoverage(result analysis.Result) string {
	if result.TotalBuckets == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d / %d", result.FilledBuckets, result.TotalBuckets)
}

// FormatSpan renders a payload size range in bytes
func FormatSpan(span analysis.Span) string {
	return fmt.Sprintf("%.1f - %.1f bytes", span.Min, span.Max)
}

// BucketChart renders bucket occupancy as a text graph. Counts are plotted
// in bucket order, so an even line means even coverage of the selected range.
func BucketChart(counts []int, width int) string {
	if len(counts) == 0 {
		return ""
	}

	data := make([]float64, len(counts))
	for i, count := range counts {
		data[i] = float64(count)
	}

	return asciigraph.Plot(data,
		asciigraph.Height(chartHeight),
		asciigraph.Width(width),
		asciigraph.Caption("connections per bucket"),
	)
}

var reportFuncs = template.FuncMap{
	"score":    FormatScore,
	"coverage": FormatCoverage,
	"span":     FormatSpan,
	"anchor":   func(id util.FixedString) string { return id.Hex() },
	"chart":    func(counts []int) string { return BucketChart(counts, reportChartWidth) },
	"comma":    func(v any) string { return printer.Sprint(v) },
	"fmtTime":  func(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") },
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplateText))

const reportTemplateText = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Network Traffic Analysis Report</title>
    <style>
body { font-family: Arial; margin: 20px auto; max-width: 1200px; padding: 20px; }
table { border-collapse: collapse; width: 100%; margin: 20px 0; }
th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
th { background-color: #f5f5f5; }
tr:nth-child(even) { background-color: #f9f9f9; }
.run-meta { color: #666; }
.plot-container { margin: 20px 0; background: white; padding: 20px; }
.dataset-section { margin: 40px 0; border-top: 2px solid #eee; padding-top: 20px; }
.params-section { background-color: #f8f9fa; padding: 15px; margin: 20px 0; }
.insufficient { color: #b00020; font-weight: bold; }
pre.chart { font-size: 12px; line-height: 1.2; overflow-x: auto; }
    </style>
</head>
<body>
    <h1>Network Traffic Analysis Report</h1>
    <p class="run-meta">Run {{.RunID}} generated {{fmtTime .GeneratedAt}}</p>

    <h2>Summary Results</h2>
    <p>{{comma (len .Results)}} pairs analyzed with a median sample size of {{.MedianSampleSize}} connections</p>
    <table>
        <tr>
            <th>Log File</th>
            <th>IP Address</th>
            <th>Label</th>
            <th>RCR</th>
            <th>Coverage</th>
            <th>Clusters</th>
            <th>Outliers Removed</th>
            <th>Total Connections</th>
        </tr>
        {{range .Results}}<tr>
            <td>{{.LogFile}}</td>
            <td>{{.IP}}</td>
            <td><a href="#pair-{{anchor .ID}}">{{.Label}}</a></td>
            <td>{{score .Score}}</td>
            <td>{{coverage .}}</td>
            <td>{{.ClusterCount}}</td>
            <td>{{.OutliersRemoved}}</td>
            <td>{{comma .RawCount}}</td>
        </tr>
        {{end}}
    </table>

    <div class="params-section">
        <h3>Analysis Parameters</h3>
        <table>
            <tr>
                <th>Parameter</th>
                <th>Value</th>
                <th>Description</th>
            </tr>
            {{range .ParamRows}}<tr>
                <td>{{.Name}}</td>
                <td>{{.Value}}</td>
                <td>{{.Description}}</td>
            </tr>
            {{end}}
        </table>
    </div>

    <h2>Detailed Analysis</h2>
    {{range .Results}}<div class="dataset-section" id="pair-{{anchor .ID}}">
        <h3>{{.Label}} ({{.IP}})</h3>
        <p>Log File: {{.LogFile}}</p>
        <p>RCR Score: {{score .Score}}</p>
        {{if gt .RawCount 0}}<p>Sample Span: {{span .SampleSpan}}</p>
        {{end}}{{if ge .FilteredCount 2}}<p>Selected Range: {{span .SelectedRange}}</p>
        {{end}}<p>Outliers Removed: {{.OutliersRemoved}}</p>
        {{if .MalformedCount}}<p>Malformed Records Skipped: {{comma .MalformedCount}}</p>
        {{end}}{{if .InsufficientData}}<p class="insufficient">Insufficient data: {{.Reason}}</p>
        {{end}}{{if .BucketCounts}}<div class="plot-container">
            <h4>Bucket Occupancy</h4>
            <pre class="chart">{{chart .BucketCounts}}</pre>
        </div>
        {{end}}
    </div>
    {{end}}
</body>
</html>
`

// WriteHTML renders the result set to the HTML report at path
func WriteHTML(afs afero.Fs, path string, set ResultSet) error {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, set); err != nil {
		return fmt.Errorf("could not render report: %w", err)
	}

	if err := afero.WriteFile(afs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("could not write report to %s: %w", path, err)
	}

	return nil
}
