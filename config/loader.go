package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// RoutingStrategyOperationName is the only dispatch strategy implemented:
// the SOAP operation element's local name selects the REST mapping.
const RoutingStrategyOperationName = "operation-name"

// Loader reads and validates bridge configuration files.
type Loader struct{}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads a YAML file, applies defaults, and validates the result.
func (l *Loader) Load(path string) (*BridgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse unmarshals raw YAML, applies defaults, and validates the result.
func (l *Loader) Parse(data []byte) (*BridgeConfig, error) {
	var cfg BridgeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *BridgeConfig) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	for name, svc := range cfg.Services {
		if svc.RoutingStrategy == "" {
			svc.RoutingStrategy = RoutingStrategyOperationName
		}
		cfg.Services[name] = svc
	}
}

// Validate checks the structural invariants of a loaded configuration:
// version present, a supported routing strategy per service, unique operation
// names within each service, and sane resilience bounds.
func Validate(cfg *BridgeConfig) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}

	for name, svc := range cfg.Services {
		if svc.RoutingStrategy != RoutingStrategyOperationName {
			return fmt.Errorf("config: service %q: unsupported routing strategy %q (only %q is implemented)",
				name, svc.RoutingStrategy, RoutingStrategyOperationName)
		}

		seen := make(map[string]bool, len(svc.Rest.Paths))
		for _, op := range svc.Rest.Paths {
			if op.Operation == "" {
				return fmt.Errorf("config: service %q: operation name is required", name)
			}
			if seen[op.Operation] {
				return fmt.Errorf("config: service %q: duplicate operation %q", name, op.Operation)
			}
			seen[op.Operation] = true

			if err := validateResilience(op.Resilience, name, op.Operation); err != nil {
				return err
			}
		}

		if err := validateResilience(svc.Resilience, name, ""); err != nil {
			return err
		}
	}

	return validateResilience(cfg.GlobalResilience, "", "")
}

func validateResilience(rc *ResilienceConfig, service, operation string) error {
	if rc == nil {
		return nil
	}
	where := "global resilience"
	if service != "" {
		where = fmt.Sprintf("service %q", service)
		if operation != "" {
			where = fmt.Sprintf("service %q operation %q", service, operation)
		}
	}
	if rc.Retry != nil && rc.Retry.Enabled {
		if rc.Retry.MaxAttempts < 0 {
			return fmt.Errorf("config: %s: retry max_attempts must be >= 1", where)
		}
		if rc.Retry.BackoffMs < 0 {
			return fmt.Errorf("config: %s: retry backoff_ms must be >= 0", where)
		}
	}
	if cb := rc.CircuitBreaker; cb != nil && cb.Enabled {
		if cb.FailureRateThreshold < 0 || cb.FailureRateThreshold > 100 {
			return fmt.Errorf("config: %s: circuit breaker failure_rate_threshold must be 0-100", where)
		}
	}
	return nil
}
