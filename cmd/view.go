package cmd

import (
	"errors"
	"fmt"

	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/report"
	"github.com/activecm/rcr/util"
	"github.com/activecm/rcr/viewer"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

var ErrMissingResultsPath = errors.New("results file path is required")
var ErrMissingSearchValue = errors.New("search value cannot be empty")
var ErrMissingSearchStdout = errors.New("cannot apply search without --stdout")
var ErrMissingLimitStdout = errors.New("cannot apply limit without --stdout")
var ErrInvalidViewLimit = errors.New("limit must be a positive interger greater than 0")
var ErrNoResults = errors.New("results file contains no scored pairs")

var ViewCommand = &cli.Command{
	Name:  "view",
	Usage: "view <results file>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:     "stdout",
			Aliases:  []string{"o"},
			Usage:    "pipe comma-delimited data to stdout",
			Required: false,
		},
		&cli.StringFlag{
			Name:     "search",
			Aliases:  []string{"s"},
			Usage:    `search criteria to apply to results piped to stdout, only works with --stdout/-o flag, format: -s="field:value field:value ..."`,
			Required: false,
		},
		&cli.IntFlag{
			Name:     "limit",
			Aliases:  []string{"l"},
			Usage:    "limit the number of results to display",
			Required: false,
		},
		ConfigFlag(false),
	},
	Action: func(cCtx *cli.Context) error {
		afs := afero.NewOsFs()

		// flags must go before the argument, otherwise they won't be applied ._.
		if !cCtx.Args().Present() {
			return ErrMissingResultsPath
		}

		if cCtx.IsSet("search") {
			if !cCtx.Bool("stdout") {
				return ErrMissingSearchStdout
			}

			if cCtx.String("search") == "" {
				return ErrMissingSearchValue
			}
		}

		// validate limit flag
		if cCtx.IsSet("limit") {
			if !cCtx.Bool("stdout") {
				return ErrMissingLimitStdout
			}

			if cCtx.Int("limit") <= 0 {
				return ErrInvalidViewLimit
			}
		}

		if err := runViewCmd(afs, cCtx.Args().First(), cCtx.Bool("stdout"), cCtx.String("search"), cCtx.Int("limit")); err != nil {
			return err
		}

		// the config is only needed for the update check here, so fall back
		// to the defaults when no config file is around
		cfg, err := config.ReadFileConfig(afs, cCtx.String("config"))
		if err != nil {
			cfg = config.GetDefaultConfig()
		}

		// check for updates after running the command
		if err := CheckForUpdate(cfg); err != nil {
			return err
		}

		return nil
	},
}

func runViewCmd(afs afero.Fs, resultsPath string, stdout bool, search string, limit int) error {
	// load the results file relative to the current working directory
	resultsPath, err := util.ParseRelativePath(resultsPath)
	if err != nil {
		return err
	}

	set, err := report.LoadResults(afs, resultsPath)
	if err != nil {
		return err
	}

	// there is nothing to browse in an empty result set
	if len(set.Results) == 0 {
		return ErrNoResults
	}

	// if stdout was requested, get CSV output
	if stdout {

		// get CSV output
		csvData, err := viewer.GetCSVOutput(set, search, limit)
		if err != nil {
			return err
		}

		// print CSV data to stdout
		fmt.Println(csvData)

	} else {

		// create UI
		if err := viewer.CreateUI(resultsPath, set); err != nil {
			return err
		}
	}

	return nil
}
