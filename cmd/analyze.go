package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/activecm/rcr/analysis"
	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/extractor"
	zlog "github.com/activecm/rcr/logger"
	"github.com/activecm/rcr/report"
	"github.com/activecm/rcr/util"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/manifoldco/promptui"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrMissingLogDirectory = errors.New("log directory flag is required")
var ErrAnalysisCancelled = errors.New("analysis cancelled, existing results were left in place")

var AnalyzeCommand = &cli.Command{
	Name:      "analyze",
	Usage:     "score the configured log/IP pairs for payload size jitter",
	UsageText: "rcr analyze [--config FILE] [--logs DIRECTORY] [--out FILE] [--non-interactive]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "logs",
			Aliases:  []string{"l"},
			Usage:    "path to the log directory, overrides input_directory from the config",
			Required: false,
			Action: func(_ *cli.Context, path string) error {
				return ValidateLogDirectory(afero.NewOsFs(), path)
			},
		},
		&cli.StringFlag{
			Name:     "out",
			Aliases:  []string{"o"},
			Usage:    "write the HTML report to `FILE`, the results JSON lands next to it",
			Value:    "./results.html",
			Required: false,
		},
		&cli.BoolFlag{
			Name:     "non-interactive",
			Aliases:  []string{"ni"},
			Usage:    "does not prompt before overwriting existing results",
			Value:    false,
			Required: false,
		},
		ConfigFlag(false),
	},
	Action: func(cCtx *cli.Context) error {
		// check if too many arguments were provided
		if cCtx.NArg() > 0 {
			return ErrTooManyArguments
		}

		afs := afero.NewOsFs()

		// load config file
		cfg, err := config.LoadConfig(afs, cCtx.String("config"))
		if err != nil {
			return err
		}

		// set the analysis start time
		startTime := time.Now()

		// run analyze command
		_, err = RunAnalyzeCmd(startTime, cfg, afs, cCtx.String("logs"), cCtx.String("out"), !cCtx.Bool("non-interactive"))
		if err != nil {
			return err
		}

		// check for updates after running the command
		if err := CheckForUpdate(cfg); err != nil {
			return err
		}

		return nil
	},
}

func RunAnalyzeCmd(startTime time.Time, cfg *config.Config, afs afero.Fs, logDir string, reportPath string, ask bool) (report.ResultSet, error) {
	var set report.ResultSet
	logger := zlog.GetLogger()

	// fall back to the configured input directory when no override was given
	if logDir == "" {
		logDir = cfg.InputDirectory
	}

	// load the log directory relative to the current working directory
	// this is done here instead of in the flag parsing so that anyone calling RunAnalyzeCmd will have the relative path
	logDir, err := util.ParseRelativePath(logDir)
	if err != nil {
		return set, err
	}

	htmlPath, jsonPath := ResultPaths(reportPath)

	logger.Info().Str("directory", logDir).Int("pairs", len(cfg.Pairs)).Str("report", htmlPath).Str("started_at", startTime.String()).Msg("Initiating new analysis...")

	// point out configured destinations that sit inside the internal subnets
	warnInternalDestinations(cfg)

	// ask before clobbering results from an earlier run
	if ask {
		if err := confirmOverwrite(afs, htmlPath, jsonPath); err != nil {
			return set, err
		}
	}

	// find the log files named in input_data
	logFiles, err := extractor.ResolveLogFiles(afs, cfg, logDir)
	if err != nil {
		return set, err
	}

	// parse the logs and score every pair
	analyzer := analysis.NewAnalyzer(afs, cfg, logFiles)
	results, err := analyzer.Run(context.Background())
	if err != nil {
		return set, err
	}

	set = report.NewResultSet(cfg.Analysis, results)

	// write the HTML report and its JSON companion
	if err := report.WriteHTML(afs, htmlPath, set); err != nil {
		return set, err
	}
	if err := set.WriteJSON(afs, jsonPath); err != nil {
		return set, err
	}

	// print the scored pairs
	fmt.Println(FormatSummaryTable(set))
	printRecordCounts(set)

	logger.Info().Str("elapsed_time", fmt.Sprintf("%1.1fs", time.Since(startTime).Seconds())).Str("report", htmlPath).Msg("🎊✨ Finished! ✨🎊")

	return set, nil
}

// ResultPaths derives the HTML report path and its JSON companion from the
// --out flag. The JSON always lands next to the report with the extension
// swapped for .json.
func ResultPaths(reportPath string) (string, string) {
	if reportPath == "" {
		reportPath = "./results.html"
	}

	ext := filepath.Ext(reportPath)
	if ext == "" {
		reportPath += ".html"
		ext = ".html"
	}

	jsonPath := strings.TrimSuffix(reportPath, ext) + ".json"

	// --out pointed straight at the JSON name, keep the report beside it
	if jsonPath == reportPath {
		reportPath = strings.TrimSuffix(reportPath, ext) + ".html"
	}

	return reportPath, jsonPath
}

// confirmOverwrite asks before replacing results left behind by an earlier run
func confirmOverwrite(afs afero.Fs, paths ...string) error {
	var existing []string
	for _, path := range paths {
		if err := util.ValidateFile(afs, path); err == nil {
			existing = append(existing, path)
		}
	}

	// nothing to clobber
	if len(existing) == 0 {
		return nil
	}

	fmt.Printf("Overwriting results: %s\n", strings.Join(existing, ", "))

	// set up prompt for confirmation
	prompt := promptui.Prompt{
		Label:     "Overwrite Results",
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		fmt.Println("Cancelling analysis...")
		return ErrAnalysisCancelled
	}

	return nil
}

// warnInternalDestinations logs configured destinations that fall inside the
// internal subnets. Beacons call out of the network, so an internal
// destination is usually a config mistake, but the pair is still scored.
func warnInternalDestinations(cfg *config.Config) {
	logger := zlog.GetLogger()

	for _, pair := range cfg.Pairs {
		ip := net.ParseIP(pair.IP)
		if ip != nil && cfg.Filter.CheckIfInternal(ip) {
			logger.Warn().Str("ip", pair.IP).Str("label", pair.Label).Msg("configured destination is inside the internal subnets")
		}
	}
}

func FormatSummaryTable(set report.ResultSet) *table.Table {
	p := message.NewPrinter(language.English)

	var data [][]string
	for _, result := range set.Results {
		data = append(data, []string{
			result.Label,
			report.FormatScore(result.Score),
			report.FormatCoverage(result),
			strconv.Itoa(result.ClusterCount),
			p.Sprint(result.RawCount),
			result.LogFile,
			result.IP,
		})
	}

	re := lipgloss.NewRenderer(os.Stdout)
	baseStyle := re.NewStyle().Padding(0, 1)
	headerStyle := baseStyle.Foreground(lipgloss.Color("252")).Bold(true)

	headers := []string{"Label", "RCR", "Coverage", "Clusters", "Sample", "Log File", "IP Address"}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(re.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(headers...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}

			even := row%2 == 0

			if even {
				return baseStyle.Foreground(lipgloss.Color("245"))
			}
			return baseStyle.Foreground(lipgloss.Color("252"))
		})
	return t
}

// printRecordCounts totals the parsed records behind the scored pairs
func printRecordCounts(set report.ResultSet) {
	p := message.NewPrinter(language.English)

	var records int
	var malformed uint64
	for _, result := range set.Results {
		records += result.RawCount
		malformed += result.MalformedCount
	}

	p.Printf("Scored %d pairs across %d matching connection records, %d malformed records were skipped\n", len(set.Results), records, malformed)
}

func ValidateLogDirectory(afs afero.Fs, logDir string) error {
	if logDir == "" {
		return ErrMissingLogDirectory
	}

	dir, err := util.ParseRelativePath(logDir)
	if err != nil {
		return err
	}

	// check if directory exists
	if err := util.ValidateDirectory(afs, dir); err != nil {
		return err
	}

	return nil
}
