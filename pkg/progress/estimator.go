// Package progress predicts validation duration and smooths engine
// progress for display. The engine's counter stays the single source of
// truth for completion; this package only shapes what the operator sees.
package progress

import (
	"time"

	"github.com/ruslano69/caseimport/pkg/validation"
)

// Throughput constants, rows per second. Derived from profiling runs on
// commodity hardware; deliberately conservative.
const (
	validatorRowsPerSec = 10000
	fuzzyRowsPerSec     = 1000
	exactRowsPerSec     = 15000
	batchOverheadSec    = 0.1
	safetyMargin        = 1.25
	minEstimate         = 10 * time.Second
)

// Estimate predicts the total validation duration for a row count under
// the given settings. Monotonically non-decreasing in both row count and
// the number of active validators.
func Estimate(rowCount int, s validation.Settings) time.Duration {
	if rowCount < 0 {
		rowCount = 0
	}

	effective := float64(rowCount)
	if s.SampleValidation && s.SamplePercent > 0 && s.SamplePercent < 100 {
		effective = effective * float64(s.SamplePercent) / 100
	}

	seconds := float64(s.ActiveValidators()) * effective / validatorRowsPerSec

	if s.CheckDuplicates {
		if s.DuplicateMode == validation.ModeFuzzy {
			seconds += effective / fuzzyRowsPerSec
		} else {
			seconds += effective / exactRowsPerSec
		}
	}

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	seconds += effective / float64(batchSize) * batchOverheadSec

	estimate := time.Duration(seconds * safetyMargin * float64(time.Second))
	if estimate < minEstimate {
		estimate = minEstimate
	}
	return estimate
}
