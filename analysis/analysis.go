// Package analysis scores payload size jitter for configured
// (log file, destination IP) pairs. Command and control channels tend to
// pad or vary their beacon payloads inside a narrow band, so a pair whose
// sizes spread evenly across its selected range scores high while organic
// traffic concentrates in a few buckets and scores low.
package analysis

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/extractor"
	zlog "github.com/activecm/rcr/logger"
	"github.com/activecm/rcr/progressbar"
	"github.com/activecm/rcr/util"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/afero"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

const analysisBarID = 1

// Result is the scored outcome for one configured (log file, IP, label) pair
type Result struct {
	ID      util.FixedString `json:"id"`
	LogFile string           `json:"log_file"`
	IP      string           `json:"ip"`
	Label   string           `json:"label"`

	RawCount       int    `json:"raw_count"`
	MalformedCount uint64 `json:"malformed_count"`
	FilteredCount  int    `json:"filtered_count"`
	SampleSpan     Span   `json:"sample_span"`
	ClusterCount   int    `json:"cluster_count"`
	SelectedRange  Span   `json:"selected_range"`
	TotalBuckets   int    `json:"total_buckets"`
	FilledBuckets  int    `json:"filled_buckets"`
	BucketCounts   []int  `json:"bucket_counts"`
	Score          RCR    `json:"rcr"`

	InsufficientData bool   `json:"insufficient_data"`
	Reason           string `json:"reason,omitempty"`
}

// OutliersRemoved returns how many sizes the z-score filter rejected
func (r Result) OutliersRemoved() int {
	return r.RawCount - r.FilteredCount
}

type Analyzer struct {
	Config          *config.Config
	AFS             afero.Fs
	LogFiles        map[string]string // configured log file name -> resolved path
	AnalysisWorkers int

	ProgressBar *mpb.Progress
}

// pairJob carries the extracted sample for one pair into the analysis phase
type pairJob struct {
	pair      config.Pair
	sizes     []float64
	malformed uint64
}

// NewAnalyzer returns a new Analyzer object. The logFiles map must hold a
// resolved on-disk path for every log file named in the config's input_data.
func NewAnalyzer(afs afero.Fs, cfg *config.Config, logFiles map[string]string) *Analyzer {
	// one worker per CPU, there is no point spinning up more than one per pair
	workers := min(runtime.NumCPU(), len(cfg.Pairs))
	if workers < 1 {
		workers = 1
	}

	return &Analyzer{
		Config:          cfg,
		AFS:             afs,
		LogFiles:        logFiles,
		AnalysisWorkers: workers,
		ProgressBar:     mpb.New(mpb.WithWidth(64)),
	}
}

// Run parses each configured log file once, extracts the payload sizes for
// the file's pairs while its records are in memory, then scores all pairs on
// a worker pool. A pair that cannot be scored is flagged insufficient-data
// and does not disturb the other pairs. Results are returned ordered by
// (log file, destination IP) no matter how the workers were scheduled.
func (analyzer *Analyzer) Run(ctx context.Context) ([]Result, error) {
	logger := zlog.GetLogger()

	// log the start time of the analysis
	start := time.Now()
	logger.Debug().Msg("Starting Analysis")

	// group the sorted pair list by log file; the files inherit the order
	pairsByFile := make(map[string][]config.Pair)
	var files []string
	for _, pair := range analyzer.Config.Pairs {
		if _, seen := pairsByFile[pair.LogFile]; !seen {
			files = append(files, pair.LogFile)
		}
		pairsByFile[pair.LogFile] = append(pairsByFile[pair.LogFile], pair)
	}

	var results []Result

	// parse each log exactly once and extract every pair's sample while the
	// records are held, so memory is bounded by one log at a time
	fileProgressBar := analyzer.ProgressBar.New(int64(len(files)),
		mpb.BarStyle().Lbound("╢").Filler("▌").Tip("▌").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			// display our name with one space on the right
			decor.Name("Log Parsing", decor.WC{C: decor.DindentRight | decor.DextraSpace}),
			// replace ETA decorator with "done" message, OnComplete event
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), "🎉"),
		),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	var jobs []pairJob
	for _, file := range files {
		records, err := extractor.LoadConnRecords(analyzer.AFS, analyzer.LogFiles[file])
		if err != nil {
			logger.Warn().Err(err).Str("log_file", file).Msg("unable to parse log file, flagging its pairs")
			for _, pair := range pairsByFile[file] {
				results = append(results, analyzer.flagInsufficient(analyzer.newResult(pair), fmt.Sprintf("unable to read log: %v", err)))
			}
			fileProgressBar.Increment()
			continue
		}

		for _, pair := range pairsByFile[file] {
			sizes, malformed := extractor.ExtractSizes(records, pair.IP)
			jobs = append(jobs, pairJob{pair: pair, sizes: sizes, malformed: malformed})
		}
		fileProgressBar.Increment()
	}

	// wait for our bar to complete and flush
	analyzer.ProgressBar.Wait()

	scored, err := analyzer.analyzePairs(ctx, jobs)
	if err != nil {
		return nil, err
	}
	results = append(results, scored...)

	// order by (log file, destination IP) so a parallel run is
	// indistinguishable from a sequential one
	slices.SortFunc(results, func(a, b Result) int {
		if c := strings.Compare(a.LogFile, b.LogFile); c != 0 {
			return c
		}
		return strings.Compare(a.IP, b.IP)
	})

	// log the end time of the analysis
	end := time.Now()
	diff := time.Since(start)
	logger.Info().Str("elapsed_time", diff.String()).Time("analysis_began", start).Time("analysis_finished", end).Msg("Finished Analysis! 🎉")

	return results, nil
}

// analyzePairs scores the extracted samples on an errgroup worker pool
func (analyzer *Analyzer) analyzePairs(ctx context.Context, jobs []pairJob) ([]Result, error) {
	logger := zlog.GetLogger()

	if len(jobs) == 0 {
		return nil, nil
	}

	analysisErrGroup, groupCtx := errgroup.WithContext(ctx)

	// create progress bar for the analysis phase
	bars := progressbar.New(groupCtx, []*progressbar.ProgressBar{
		progressbar.NewBar("Payload Range Analysis", analysisBarID, progress.New(progress.WithDefaultGradient())),
	})

	analysisErrGroup.Go(func() error {
		_, err := bars.Run()
		if err != nil {
			logger.Error().Err(err).Msg("unable to display progress for payload analysis")
			return fmt.Errorf("unable to display progress for payload analysis: %w", err)
		}
		return err
	})

	jobChan := make(chan pairJob)

	// feed the workers, bailing out if the context is cancelled
	analysisErrGroup.Go(func() error {
		defer close(jobChan)
		for _, job := range jobs {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case jobChan <- job:
			}
		}
		return nil
	})

	var (
		mutex     sync.Mutex
		results   []Result
		completed int
	)

	// create analysis calculation workers
	for i := 0; i < analyzer.AnalysisWorkers; i++ {
		analysisErrGroup.Go(func() error {
			for job := range jobChan {
				result := analyzer.analyzePair(job)

				mutex.Lock()
				results = append(results, result)
				completed++
				percent := float64(completed) / float64(len(jobs))
				mutex.Unlock()

				bars.Send(progressbar.ProgressMsg{ID: analysisBarID, Percent: percent})
			}
			return nil
		})
	}

	// wait for all analysis threads to finish
	if err := analysisErrGroup.Wait(); err != nil {
		return nil, fmt.Errorf("could not perform payload analysis: %w", err)
	}

	return results, nil
}

// analyzePair runs one pair's sample through outlier filtering, range
// selection and scoring. It always produces a Result; anything that keeps the
// pair from being scored flags the result instead of erroring out.
func (analyzer *Analyzer) analyzePair(job pairJob) Result {
	logger := zlog.GetLogger()

	result := analyzer.newResult(job.pair)
	result.RawCount = len(job.sizes)
	result.MalformedCount = job.malformed

	if len(job.sizes) == 0 {
		return analyzer.flagInsufficient(result, "no matching connections")
	}
	// span of the raw sample, before any outliers are dropped
	result.SampleSpan = Span{Min: slices.Min(job.sizes), Max: slices.Max(job.sizes)}

	filtered, err := FilterOutliers(job.sizes, analyzer.Config.Analysis.ZScoreThreshold)
	if err != nil {
		logger.Err(err).Caller().Str("log_file", job.pair.LogFile).Str("ip", job.pair.IP).Send()
		return analyzer.flagInsufficient(result, fmt.Sprintf("unable to filter outliers: %v", err))
	}
	result.FilteredCount = len(filtered)

	selectedRange, clusterCount, err := SelectRange(filtered, analyzer.Config.Analysis.ClusterWidth, analyzer.Config.Analysis.MinClusterSize)
	if err != nil {
		return analyzer.flagInsufficient(result, err.Error())
	}
	result.SelectedRange = selectedRange
	result.ClusterCount = clusterCount

	totalBuckets, filledBuckets, bucketCounts, rcr, err := ScoreRange(filtered, selectedRange, analyzer.Config.Analysis.BucketSize, analyzer.Config.Analysis.MinBucketCount)
	if err != nil {
		logger.Err(err).Caller().Str("log_file", job.pair.LogFile).Str("ip", job.pair.IP).Send()
		return analyzer.flagInsufficient(result, err.Error())
	}
	result.TotalBuckets = totalBuckets
	result.FilledBuckets = filledBuckets
	result.BucketCounts = bucketCounts
	result.Score = RCR(rcr)

	// a single repeated payload size has no range to cover, which is a
	// distinct outcome from low coverage
	if math.IsNaN(rcr) {
		return analyzer.flagInsufficient(result, "zero-width selected range")
	}

	return result
}

// newResult builds the identity portion of a pair's result. The score starts
// out NaN so pairs that never reach scoring read as unscored, not as zero.
func (analyzer *Analyzer) newResult(pair config.Pair) Result {
	logger := zlog.GetLogger()

	id, err := util.NewFixedStringHash(pair.LogFile, pair.IP, pair.Label)
	if err != nil {
		logger.Err(err).Caller().Str("log_file", pair.LogFile).Str("ip", pair.IP).Send()
	}

	return Result{
		ID:      id,
		LogFile: pair.LogFile,
		IP:      pair.IP,
		Label:   pair.Label,
		Score:   RCR(math.NaN()),
	}
}

func (analyzer *Analyzer) flagInsufficient(result Result, reason string) Result {
	logger := zlog.GetLogger()
	logger.Debug().Str("log_file", result.LogFile).Str("ip", result.IP).Str("reason", reason).Msg("flagging pair with insufficient data")

	result.InsufficientData = true
	result.Reason = reason
	return result
}
