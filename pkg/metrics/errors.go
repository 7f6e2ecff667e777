package metrics

// Error type labels used with RecordError.
const (
	ErrorTypeTimeout      = "timeout"
	ErrorTypeValidation   = "validation"
	ErrorTypeBackpressure = "backpressure"
	ErrorTypeInternal     = "internal"
	ErrorTypeNotFound     = "not_found"
)
