// Package extractor parses Zeek conn logs (TSV or JSON, optionally gzipped)
// and pulls out the originator payload sizes observed for a given destination.
package extractor

import (
	zlog "github.com/activecm/rcr/logger"

	"golang.org/x/time/rate"
)

// malformedWarnLimiter throttles warns about malformed records across all
// extractions so a badly mangled log cannot flood the console
var malformedWarnLimiter = rate.NewLimiter(5, 5)

// ExtractSizes collects the originator payload size of every connection made to the
// given destination IP, in the order the records appear in the log. Records missing
// a destination address or a payload size are skipped and counted as malformed.
func ExtractSizes(records []Record, destinationIP string) ([]float64, uint64) {
	logger := zlog.GetLogger()

	var sizes []float64
	var malformed uint64

	for _, record := range records {
		destination := record.Destination()

		// a record with no destination can never be matched to a pair
		if destination == "" {
			malformed++
			if malformedWarnLimiter.Allow() {
				logger.Warn().Str("destination_ip", destinationIP).Msg("skipping record with no destination address")
			}
			continue
		}

		if destination != destinationIP {
			continue
		}

		// the connection matched, but Zeek logged no originator byte count for it
		size, ok := record.PayloadSize()
		if !ok {
			malformed++
			if malformedWarnLimiter.Allow() {
				logger.Warn().Str("destination_ip", destinationIP).Msg("skipping record with no originator byte count")
			}
			continue
		}

		sizes = append(sizes, float64(size))
	}

	return sizes, malformed
}
