package constants

const (
	// Server modes
	ModeDebug   = "debug"
	ModeRelease = "release"
	ModeTest    = "test"

	// Default pagination
	DefaultPageSize = 20
	MaxPageSize     = 100

	// HTTP Headers
	HeaderXRequestID = "X-Request-ID"

	// Context keys
	ContextKeyRequestID = "request_id"

	// Database drivers
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	// Database table names
	TableFailoverRecords = "failover_records"
	TableStatsSamples    = "stats_samples"
)
