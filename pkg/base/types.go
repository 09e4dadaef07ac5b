package base

const (
	ServiceName    = "inboxsweep"
	ServiceVersion = "1.0.0"

	// TelemetryDSNEnvVar carries the collector credentials for the OTLP exporters.
	TelemetryDSNEnvVar = "INBOXSWEEP_OTLP_DSN"

	// UntrashBatchSize bounds how many compensating calls an undo submits at once.
	UntrashBatchSize = 20
)
