package config

import "time"

// BridgeConfig is the root configuration tree. It is loaded once at startup
// and must not be mutated afterwards; the route table is compiled from it.
type BridgeConfig struct {
	Version          string                       `yaml:"version"`
	Server           ServerConfig                 `yaml:"server"`
	Logging          LoggingConfig                `yaml:"logging"`
	Services         map[string]ServiceDefinition `yaml:"services"`
	GlobalResilience *ResilienceConfig            `yaml:"global_resilience"`
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig defines logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ServiceDefinition declares one SOAP-facing service and its REST backend.
type ServiceDefinition struct {
	SoapPath        string            `yaml:"soap_path"`
	RoutingStrategy string            `yaml:"routing_strategy"`
	Rest            RestConfig        `yaml:"rest"`
	Security        SecurityConfig    `yaml:"security"`
	Resilience      *ResilienceConfig `yaml:"resilience"`
}

// RestConfig defines the backend base URL and the operation mappings.
type RestConfig struct {
	DomainPath string             `yaml:"domain_path"`
	Paths      []OperationMapping `yaml:"paths"`
}

// OperationMapping binds one SOAP operation to one REST invocation. Path may
// contain ${header.NAME} placeholders resolved from the SOAP parameters.
type OperationMapping struct {
	ID         string            `yaml:"id"`
	Operation  string            `yaml:"operation"`
	Path       string            `yaml:"path"`
	Method     string            `yaml:"method"`
	TimeoutMs  int               `yaml:"timeout_ms"`
	Headers    map[string]string `yaml:"headers"`
	Resilience *ResilienceConfig `yaml:"resilience"`
}

// Timeout returns the per-call timeout, defaulting to 5s.
func (m OperationMapping) Timeout() time.Duration {
	if m.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// SecurityConfig groups the independently enableable security features.
type SecurityConfig struct {
	OAuth2     *OAuth2Config     `yaml:"oauth2"`
	WsSecurity *WsSecurityConfig `yaml:"ws_security"`
	MutualTLS  *MutualTLSConfig  `yaml:"mutual_tls"`
}

// OAuth2Config configures the client-credentials flow against the backend.
type OAuth2Config struct {
	Enabled      bool   `yaml:"enabled"`
	TokenURI     string `yaml:"token_uri"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
}

// WsSecurityConfig configures inbound UsernameToken validation.
type WsSecurityConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MutualTLSConfig configures the outbound TLS client identity. Keystore and
// truststore are PEM files on the local filesystem.
type MutualTLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	KeystorePath       string `yaml:"keystore_path"`
	KeystorePassword   string `yaml:"keystore_password"`
	TruststorePath     string `yaml:"truststore_path"`
	TruststorePassword string `yaml:"truststore_password"`
}

// ResilienceConfig groups retry and circuit breaker settings. Precedence is
// operation over service over global; the first non-nil config wins whole.
type ResilienceConfig struct {
	Retry          *RetryConfig          `yaml:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig configures fixed-backoff retries around the backend call.
type RetryConfig struct {
	Enabled     bool  `yaml:"enabled"`
	MaxAttempts int   `yaml:"max_attempts"`
	BackoffMs   int64 `yaml:"backoff_ms"`
}

// Attempts returns the total attempt count, defaulting to 3.
func (r RetryConfig) Attempts() int {
	if r.MaxAttempts < 1 {
		return 3
	}
	return r.MaxAttempts
}

// Backoff returns the fixed sleep between attempts. Zero is a valid
// configuration and means no sleep.
func (r RetryConfig) Backoff() time.Duration {
	if r.BackoffMs < 0 {
		return 0
	}
	return time.Duration(r.BackoffMs) * time.Millisecond
}

// CircuitBreakerConfig configures the per-route breaker.
type CircuitBreakerConfig struct {
	Enabled              bool  `yaml:"enabled"`
	FailureRateThreshold int   `yaml:"failure_rate_threshold"`
	WaitDurationOpenMs   int64 `yaml:"wait_duration_open_ms"`
	SlidingWindowSize    int   `yaml:"sliding_window_size"`
}

// Threshold returns the failure rate threshold percent, defaulting to 50.
func (c CircuitBreakerConfig) Threshold() int {
	if c.FailureRateThreshold <= 0 {
		return 50
	}
	return c.FailureRateThreshold
}

// WaitDurationOpen returns the open-state cooldown, defaulting to 10s.
func (c CircuitBreakerConfig) WaitDurationOpen() time.Duration {
	if c.WaitDurationOpenMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.WaitDurationOpenMs) * time.Millisecond
}

// WindowSize returns the sliding window size, defaulting to 10.
func (c CircuitBreakerConfig) WindowSize() int {
	if c.SlidingWindowSize <= 0 {
		return 10
	}
	return c.SlidingWindowSize
}

// ResolveResilience applies the operation-over-service-over-global precedence.
func ResolveResilience(op *ResilienceConfig, svc *ResilienceConfig, global *ResilienceConfig) *ResilienceConfig {
	if op != nil {
		return op
	}
	if svc != nil {
		return svc
	}
	return global
}

// NormalizedSoapPath returns the mount path for a service: the configured
// soap_path forced to start with "/", or "/soap/<name>" when unset.
func (s ServiceDefinition) NormalizedSoapPath(serviceName string) string {
	if s.SoapPath == "" {
		return "/soap/" + serviceName
	}
	if s.SoapPath[0] != '/' {
		return "/" + s.SoapPath
	}
	return s.SoapPath
}
