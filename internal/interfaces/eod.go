package interfaces

import "time"

// EodSummarizer turns the day's trade log into a CSV report after the close.
type EodSummarizer interface {
	SummarizeDay(t time.Time) (csvPath string, err error)
	SummarizeToday() (csvPath string, err error)
	ShouldRunNow() (shouldRun bool, csvPath string)
}
