package config

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	OTelEnabled bool `env:"EXPENSED_OTEL_ENABLED" default:"false"`

	// OTelEndpoint is the OTLP/HTTP collector endpoint.
	OTelEndpoint string `env:"EXPENSED_OTEL_ENDPOINT" default:"localhost:4318"`
}
