package utils

// Context keys for request-scoped values
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// Campaign engine defaults
const (
	// DefaultRecipientBatchInsertSize is the number of recipient rows written per INSERT
	DefaultRecipientBatchInsertSize = 500

	// QuotaPeriodLayout formats the monthly quota bucket (e.g. 2026-10)
	QuotaPeriodLayout = "2006-01"
)
