package types

// Version is the application version, overwritten at build time via ldflags
var Version = "dev"

// EventID is the internal identifier of a persisted event (UUID)
type EventID string

// DeliveryID is the platform-assigned webhook delivery identifier
type DeliveryID string

// SummaryStatus is the terminal status of a summarization run
type SummaryStatus string

const (
	// StatusGrounded means the grader accepted the summary as supported by
	// the source context.
	StatusGrounded SummaryStatus = "grounded"

	// StatusExhausted means the retry budget was spent without a grounded
	// verdict. The summary is still recorded, with degraded confidence.
	StatusExhausted SummaryStatus = "exhausted"
)
