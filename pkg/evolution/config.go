package evolution

import "time"

// Config holds the messaging API client settings.
type Config struct {
	Timeout          time.Duration `env:"EVOLUTION_TIMEOUT" envDefault:"60s"`
	MaxIdleConns     int           `env:"EVOLUTION_MAX_IDLE_CONNS" envDefault:"100"`
	CircuitFailures  int           `env:"EVOLUTION_CIRCUIT_FAILURES" envDefault:"5"`
	CircuitRecovery  time.Duration `env:"EVOLUTION_CIRCUIT_RECOVERY" envDefault:"30s"`
	MaxResponseBytes int64         `env:"EVOLUTION_MAX_RESPONSE_BYTES" envDefault:"65536"`
}
