package constants

type ContextKey string

const (
	AppKey       ContextKey = "app"
	LoggerKey    ContextKey = "logger"
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	RequestStart ContextKey = "requestStart"
	RequestIDKey ContextKey = "requestID"
)

// Validate is the shared struct validator; field names are taken from json tags.
var Validate = newValidator()
