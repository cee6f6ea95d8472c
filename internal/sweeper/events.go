package sweeper

import (
	"context"
	"errors"

	"github.com/roelfdiedericks/chatsweep/internal/actions"
	"github.com/roelfdiedericks/chatsweep/internal/browser"
	"github.com/roelfdiedericks/chatsweep/internal/classify"
)

// Payloads published on the bus. scan.progress carries scraper.Progress.

// ScanCompleted is the payload of bus.TopicScanCompleted.
type ScanCompleted struct {
	Entries    int            `json:"entries"`
	Classified int            `json:"classified"`
	Counts     map[string]int `json:"counts"`
	ElapsedMs  int64          `json:"elapsedMs"`
}

// ScanFailed is the payload of bus.TopicScanFailed.
type ScanFailed struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// DeleteProgress is the payload of bus.TopicDeleteOutcome.
type DeleteProgress struct {
	Index   int             `json:"index"`
	Total   int             `json:"total"`
	Outcome actions.Outcome `json:"outcome"`
}

// DeleteCompleted is the payload of bus.TopicDeleteCompleted.
type DeleteCompleted struct {
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	ElapsedMs int64 `json:"elapsedMs"`
}

// Failure reasons carried by ScanFailed.
const (
	ReasonCancelled      = "cancelled"
	ReasonConnection     = "connection"
	ReasonAppNotReady    = "app_not_ready"
	ReasonClassification = "classification"
	ReasonOther          = "other"
)

// FailureReason buckets a flow error into one of the Reason values.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, ErrAppNotReady):
		return ReasonAppNotReady
	case errors.Is(err, classify.ErrClassificationFailed):
		return ReasonClassification
	case errors.Is(err, browser.ErrConnectionExhausted), browser.IsConnectionLost(err):
		return ReasonConnection
	default:
		return ReasonOther
	}
}
