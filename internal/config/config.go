// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the translateLocal server.
// It handles loading and parsing the YAML configuration file, applying defaults,
// environment overrides and sanitisation, and provides structured access to the
// server, model, runtime, artifact, inference, startup and security settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/traylinx/translateLocal/internal/langtag"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the port the API server listens on when none is configured.
	DefaultPort = 8002

	// DefaultHubEndpoint is the model hub used when neither config nor HF_ENDPOINT set one.
	DefaultHubEndpoint = "https://huggingface.co"
	// DefaultInferenceEndpoint is the hosted inference API used by the remote backend.
	DefaultInferenceEndpoint = "https://api-inference.huggingface.co"

	BackendONNX   = "onnx"
	BackendRemote = "remote"

	SourceHub = "hub"
	SourceS3  = "s3"

	OnLoadFailureExit        = "exit"
	OnLoadFailureStayUnready = "stay-unready"

	// DefaultMaxBodyBytes caps request bodies at 10 MiB.
	DefaultMaxBodyBytes int64 = 10 << 20
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface on which the API server will bind.
	// Default is empty ("") to bind all interfaces.
	Host string `yaml:"host" json:"-"`
	// Port is the network port on which the API server will listen.
	Port int `yaml:"port" json:"-"`

	// Debug enables or disables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile controls whether application logs are written to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB limits the total size (in MB) of log files under the logs directory.
	// When exceeded, the oldest log files are deleted until within the limit. Set to 0 to disable.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	// RequestLog toggles the per-request access log.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// Models maps target languages to the pretrained models serving them.
	Models []ModelConfig `yaml:"models" json:"models"`

	// Runtime selects and configures the model runtime backend.
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`

	// Hub configures where model artifacts are downloaded from and cached.
	Hub HubConfig `yaml:"hub" json:"hub"`

	// Inference bounds the worker pool and the generation limits.
	Inference InferenceConfig `yaml:"inference" json:"inference"`

	// Startup controls the model loading policy.
	Startup StartupConfig `yaml:"startup" json:"startup"`

	// Security configures the HTTP hardening middleware.
	Security SecurityConfig `yaml:"security" json:"security"`
}

// ModelConfig declares one supported target language.
type ModelConfig struct {
	// Language is the target language code, e.g. "fr".
	Language string `yaml:"language" json:"language"`
	// ModelID is the hub identifier, e.g. "Helsinki-NLP/opus-mt-en-fr".
	ModelID string `yaml:"model-id" json:"model-id"`
	// OnnxModelID is the repository holding the ONNX export used by the onnx
	// backend. Empty means ModelID itself carries the export.
	OnnxModelID string `yaml:"onnx-model-id" json:"onnx-model-id"`
	// OnnxDir is the folder of the export holding the encoder and decoder graphs.
	// Empty means DefaultOnnxDir; "." means the repository root.
	OnnxDir string `yaml:"onnx-dir" json:"onnx-dir"`
}

// ArtifactModelID returns the repository the onnx backend downloads from.
func (m ModelConfig) ArtifactModelID() string {
	if m.OnnxModelID != "" {
		return m.OnnxModelID
	}
	return m.ModelID
}

// RuntimeConfig selects the model runtime.
type RuntimeConfig struct {
	// Backend is "onnx" (local ONNX Runtime) or "remote" (hosted inference endpoint).
	Backend string `yaml:"backend" json:"backend"`
	// SharedLibraryPath points at the onnxruntime shared library. Empty means auto-detect.
	SharedLibraryPath string `yaml:"shared-library-path" json:"shared-library-path"`
	// Remote configures the hosted inference backend.
	Remote RemoteRuntimeConfig `yaml:"remote" json:"remote"`
}

// RemoteRuntimeConfig configures the hosted inference backend.
type RemoteRuntimeConfig struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Token           string `yaml:"token" json:"-"`
	TimeoutSeconds  int    `yaml:"timeout-seconds" json:"timeout-seconds"`
	BreakerFailures int    `yaml:"breaker-failures" json:"breaker-failures"`
}

// HubConfig configures the artifact source and the local cache.
type HubConfig struct {
	// Source is "hub" (HTTP model hub) or "s3" (S3-compatible mirror).
	Source   string `yaml:"source" json:"source"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Token    string `yaml:"token" json:"-"`
	Revision string `yaml:"revision" json:"revision"`
	// CacheDir overrides the artifact cache directory. Empty means <state>/models.
	CacheDir string   `yaml:"cache-dir" json:"cache-dir"`
	S3       S3Config `yaml:"s3" json:"s3"`
}

// S3Config configures the S3-compatible artifact mirror.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	AccessKey string `yaml:"access-key" json:"-"`
	SecretKey string `yaml:"secret-key" json:"-"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl"`
}

// InferenceConfig bounds inference work.
type InferenceConfig struct {
	// Workers is the worker pool size. 0 means one worker per CPU.
	Workers        int `yaml:"workers" json:"workers"`
	QueueSize      int `yaml:"queue-size" json:"queue-size"`
	MaxInputTokens int `yaml:"max-input-tokens" json:"max-input-tokens"`
	MaxNewTokens   int `yaml:"max-new-tokens" json:"max-new-tokens"`
	MaxBatchSize   int `yaml:"max-batch-size" json:"max-batch-size"`
}

// StartupConfig controls model loading at startup.
type StartupConfig struct {
	// OnLoadFailure is "exit" or "stay-unready".
	OnLoadFailure      string `yaml:"on-load-failure" json:"on-load-failure"`
	LoadAttempts       int    `yaml:"load-attempts" json:"load-attempts"`
	LoadBackoffSeconds int    `yaml:"load-backoff-seconds" json:"load-backoff-seconds"`
}

// SecurityConfig configures HTTP hardening.
type SecurityConfig struct {
	CORSAllowOrigins []string `yaml:"cors-allow-origins" json:"cors-allow-origins"`
	MaxBodyBytes     int64    `yaml:"max-body-bytes" json:"max-body-bytes"`
	// RequestsPerMinute is the per-client rate. 0 disables rate limiting.
	RequestsPerMinute int  `yaml:"requests-per-minute" json:"requests-per-minute"`
	Burst             int  `yaml:"burst" json:"burst"`
	Headers           bool `yaml:"headers" json:"headers"`
	Compress          bool `yaml:"compress" json:"compress"`
}

// DefaultOnnxDir is where ONNX exports of seq2seq models keep their graphs.
const DefaultOnnxDir = "onnx"

// DefaultModels returns the English to French and English to Hebrew model set.
// The Helsinki-NLP repositories publish no ONNX graphs, so the onnx backend
// reads the transformers.js exports of the same checkpoints.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{Language: "fr", ModelID: "Helsinki-NLP/opus-mt-en-fr", OnnxModelID: "Xenova/opus-mt-en-fr", OnnxDir: DefaultOnnxDir},
		{Language: "he", ModelID: "Helsinki-NLP/opus-mt-en-he", OnnxModelID: "Xenova/opus-mt-en-he", OnnxDir: DefaultOnnxDir},
	}
}

// NewDefault returns a configuration populated with every default value.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	cfg.Host = "" // Default empty: binds to all interfaces
	cfg.Port = DefaultPort
	cfg.RequestLog = true
	cfg.Models = DefaultModels()

	cfg.Runtime.Backend = BackendONNX
	cfg.Runtime.Remote.TimeoutSeconds = 60
	cfg.Runtime.Remote.BreakerFailures = 5

	cfg.Hub.Source = SourceHub
	cfg.Hub.Revision = "main"
	cfg.Hub.S3.UseSSL = true

	cfg.Inference.QueueSize = 64
	cfg.Inference.MaxInputTokens = 512
	cfg.Inference.MaxNewTokens = 512
	cfg.Inference.MaxBatchSize = 32

	cfg.Startup.OnLoadFailure = OnLoadFailureExit
	cfg.Startup.LoadAttempts = 1
	cfg.Startup.LoadBackoffSeconds = 5

	cfg.Security.CORSAllowOrigins = []string{"*"}
	cfg.Security.MaxBodyBytes = DefaultMaxBodyBytes
	cfg.Security.RequestsPerMinute = 60
	cfg.Security.Burst = 10
	cfg.Security.Headers = true
}

// LoadConfig reads a YAML configuration file from the given path,
// unmarshals it into a Config struct, applies defaults and sanitises it.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads YAML from configFile.
// If optional is true and the file is missing or empty, it returns the defaults instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && (os.IsNotExist(err) || errors.Is(err, syscall.EISDIR)) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if optional && len(strings.TrimSpace(string(data))) == 0 {
		return NewDefault(), nil
	}

	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults, then sanitises and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	// Set defaults before unmarshal so that absent keys keep defaults.
	cfg.applyDefaults()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sanitize normalises values in place: trims strings, lowercases enumerations and
// language codes, and resets out-of-range numbers to their defaults.
func (cfg *Config) Sanitize() {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
	}
	if cfg.LogsMaxTotalSizeMB < 0 {
		cfg.LogsMaxTotalSizeMB = 0
	}

	cfg.SanitizeModels()
	cfg.SanitizeRuntime()
	cfg.SanitizeHub()
	cfg.SanitizeInference()
	cfg.SanitizeStartup()
	cfg.SanitizeSecurity()
}

// SanitizeModels trims model entries, drops rows with both fields empty and
// reduces language codes to the canonical base requests are matched against
// ("pt-BR" becomes "pt", "iw" becomes "he"). Codes that do not parse are kept
// lower-cased for Validate to report.
func (cfg *Config) SanitizeModels() {
	out := make([]ModelConfig, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		m.Language = strings.ToLower(strings.TrimSpace(m.Language))
		m.ModelID = strings.TrimSpace(m.ModelID)
		m.OnnxModelID = strings.TrimSpace(m.OnnxModelID)
		m.OnnxDir = strings.Trim(strings.TrimSpace(m.OnnxDir), "/")
		if m.Language == "" && m.ModelID == "" {
			continue
		}
		if lang, err := langtag.Canonical(m.Language); err == nil {
			m.Language = lang
		}
		if m.OnnxDir == "" {
			m.OnnxDir = DefaultOnnxDir
		}
		out = append(out, m)
	}
	cfg.Models = out
}

// SanitizeRuntime normalises the runtime section.
func (cfg *Config) SanitizeRuntime() {
	cfg.Runtime.Backend = strings.ToLower(strings.TrimSpace(cfg.Runtime.Backend))
	if cfg.Runtime.Backend == "" {
		cfg.Runtime.Backend = BackendONNX
	}
	cfg.Runtime.SharedLibraryPath = strings.TrimSpace(cfg.Runtime.SharedLibraryPath)
	cfg.Runtime.Remote.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Runtime.Remote.Endpoint), "/")
	cfg.Runtime.Remote.Token = strings.TrimSpace(cfg.Runtime.Remote.Token)
	if cfg.Runtime.Remote.TimeoutSeconds <= 0 {
		cfg.Runtime.Remote.TimeoutSeconds = 60
	}
	if cfg.Runtime.Remote.BreakerFailures <= 0 {
		cfg.Runtime.Remote.BreakerFailures = 5
	}
}

// SanitizeHub normalises the artifact source section.
func (cfg *Config) SanitizeHub() {
	cfg.Hub.Source = strings.ToLower(strings.TrimSpace(cfg.Hub.Source))
	if cfg.Hub.Source == "" {
		cfg.Hub.Source = SourceHub
	}
	cfg.Hub.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Hub.Endpoint), "/")
	cfg.Hub.Token = strings.TrimSpace(cfg.Hub.Token)
	cfg.Hub.Revision = strings.TrimSpace(cfg.Hub.Revision)
	if cfg.Hub.Revision == "" {
		cfg.Hub.Revision = "main"
	}
	cfg.Hub.CacheDir = strings.TrimSpace(cfg.Hub.CacheDir)
	cfg.Hub.S3.Endpoint = strings.TrimSpace(cfg.Hub.S3.Endpoint)
	cfg.Hub.S3.Bucket = strings.TrimSpace(cfg.Hub.S3.Bucket)
	cfg.Hub.S3.Prefix = strings.Trim(strings.TrimSpace(cfg.Hub.S3.Prefix), "/")
}

// SanitizeInference resets non-positive limits to their defaults.
func (cfg *Config) SanitizeInference() {
	if cfg.Inference.Workers < 0 {
		cfg.Inference.Workers = 0
	}
	if cfg.Inference.QueueSize <= 0 {
		cfg.Inference.QueueSize = 64
	}
	if cfg.Inference.MaxInputTokens <= 0 {
		cfg.Inference.MaxInputTokens = 512
	}
	if cfg.Inference.MaxNewTokens <= 0 {
		cfg.Inference.MaxNewTokens = 512
	}
	if cfg.Inference.MaxBatchSize <= 0 {
		cfg.Inference.MaxBatchSize = 32
	}
}

// SanitizeStartup normalises the load policy.
func (cfg *Config) SanitizeStartup() {
	cfg.Startup.OnLoadFailure = strings.ToLower(strings.TrimSpace(cfg.Startup.OnLoadFailure))
	if cfg.Startup.OnLoadFailure == "" {
		cfg.Startup.OnLoadFailure = OnLoadFailureExit
	}
	if cfg.Startup.LoadAttempts <= 0 {
		cfg.Startup.LoadAttempts = 1
	}
	if cfg.Startup.LoadBackoffSeconds < 0 {
		cfg.Startup.LoadBackoffSeconds = 0
	}
}

// SanitizeSecurity trims CORS origins and clamps limits.
func (cfg *Config) SanitizeSecurity() {
	origins := make([]string, 0, len(cfg.Security.CORSAllowOrigins))
	seen := make(map[string]struct{}, len(cfg.Security.CORSAllowOrigins))
	for _, origin := range cfg.Security.CORSAllowOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	cfg.Security.CORSAllowOrigins = origins
	if cfg.Security.MaxBodyBytes <= 0 {
		cfg.Security.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Security.RequestsPerMinute < 0 {
		cfg.Security.RequestsPerMinute = 0
	}
	if cfg.Security.Burst <= 0 {
		cfg.Security.Burst = 1
	}
}

// Validate reports configuration errors that cannot be fixed by sanitisation.
func (cfg *Config) Validate() error {
	if len(cfg.Models) == 0 {
		return fmt.Errorf("config: at least one model must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Models))
	for i, m := range cfg.Models {
		if m.Language == "" {
			return fmt.Errorf("config: models[%d]: language is required", i)
		}
		if m.ModelID == "" {
			return fmt.Errorf("config: models[%d]: model-id is required", i)
		}
		if lang, err := langtag.Canonical(m.Language); err != nil || lang != m.Language {
			return fmt.Errorf("config: models[%d]: language %q is not a canonical language code", i, m.Language)
		}
		if m.OnnxDir != "" && m.OnnxDir != "." && !filepath.IsLocal(m.OnnxDir) {
			return fmt.Errorf("config: models[%d]: onnx-dir %q must stay inside the model repository", i, m.OnnxDir)
		}
		if _, dup := seen[m.Language]; dup {
			return fmt.Errorf("config: models[%d]: duplicate language %q", i, m.Language)
		}
		seen[m.Language] = struct{}{}
	}

	switch cfg.Runtime.Backend {
	case BackendONNX, BackendRemote:
	default:
		return fmt.Errorf("config: runtime.backend must be %q or %q, got %q", BackendONNX, BackendRemote, cfg.Runtime.Backend)
	}

	switch cfg.Hub.Source {
	case SourceHub:
	case SourceS3:
		if cfg.Runtime.Backend == BackendONNX && cfg.Hub.S3.Bucket == "" {
			return fmt.Errorf("config: hub.s3.bucket is required when hub.source is %q", SourceS3)
		}
	default:
		return fmt.Errorf("config: hub.source must be %q or %q, got %q", SourceHub, SourceS3, cfg.Hub.Source)
	}

	switch cfg.Startup.OnLoadFailure {
	case OnLoadFailureExit, OnLoadFailureStayUnready:
	default:
		return fmt.Errorf("config: startup.on-load-failure must be %q or %q, got %q", OnLoadFailureExit, OnLoadFailureStayUnready, cfg.Startup.OnLoadFailure)
	}
	return nil
}

// ApplyEnvironment overlays environment settings on the configuration.
// HF_ENDPOINT replaces the hub endpoint; HF_TOKEN fills empty hub and remote tokens;
// OBJECTSTORE_* variables configure the S3 mirror. lookup is typically os.LookupEnv.
func (cfg *Config) ApplyEnvironment(lookup func(string) (string, bool)) {
	get := func(key string) string {
		if lookup == nil {
			return ""
		}
		if v, ok := lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}

	if endpoint := get("HF_ENDPOINT"); endpoint != "" {
		cfg.Hub.Endpoint = strings.TrimRight(endpoint, "/")
	}
	if token := get("HF_TOKEN"); token != "" {
		if cfg.Hub.Token == "" {
			cfg.Hub.Token = token
		}
		if cfg.Runtime.Remote.Token == "" {
			cfg.Runtime.Remote.Token = token
		}
	}

	if endpoint := get("OBJECTSTORE_ENDPOINT"); endpoint != "" {
		host, useSSL, err := ParseObjectStoreEndpoint(endpoint)
		if err == nil {
			cfg.Hub.S3.Endpoint = host
			cfg.Hub.S3.UseSSL = useSSL
		}
	}
	if v := get("OBJECTSTORE_ACCESS_KEY"); v != "" {
		cfg.Hub.S3.AccessKey = v
	}
	if v := get("OBJECTSTORE_SECRET_KEY"); v != "" {
		cfg.Hub.S3.SecretKey = v
	}
	if v := get("OBJECTSTORE_BUCKET"); v != "" {
		cfg.Hub.S3.Bucket = v
	}
}

// ParseObjectStoreEndpoint splits an endpoint that may carry an http or https scheme
// into the bare host and the TLS flag expected by S3 clients.
func ParseObjectStoreEndpoint(endpoint string) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	useSSL := true
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("invalid object store endpoint %q: %w", endpoint, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return "", false, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("object store endpoint %q is missing host information", endpoint)
		}
		endpoint = parsed.Host
		if parsed.Path != "" && parsed.Path != "/" {
			endpoint = strings.TrimSuffix(parsed.Host+parsed.Path, "/")
		}
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return "", false, fmt.Errorf("object store endpoint is empty")
	}
	return endpoint, useSSL, nil
}

// HubEndpoint returns the effective hub endpoint.
func (cfg *Config) HubEndpoint() string {
	if cfg.Hub.Endpoint != "" {
		return cfg.Hub.Endpoint
	}
	return DefaultHubEndpoint
}

// RemoteEndpoint returns the effective inference endpoint for the remote backend.
func (cfg *Config) RemoteEndpoint() string {
	if cfg.Runtime.Remote.Endpoint != "" {
		return cfg.Runtime.Remote.Endpoint
	}
	return DefaultInferenceEndpoint
}

// RemoteTimeout returns the per-request timeout of the remote backend.
func (cfg *Config) RemoteTimeout() time.Duration {
	return time.Duration(cfg.Runtime.Remote.TimeoutSeconds) * time.Second
}

// LoadBackoff returns the delay between startup load attempts.
func (cfg *Config) LoadBackoff() time.Duration {
	return time.Duration(cfg.Startup.LoadBackoffSeconds) * time.Second
}

// Languages returns the configured target languages in declaration order.
func (cfg *Config) Languages() []string {
	out := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		out = append(out, m.Language)
	}
	return out
}

// ModelsEqual reports whether two configurations declare the same model set.
func (cfg *Config) ModelsEqual(other *Config) bool {
	if cfg == nil || other == nil {
		return cfg == other
	}
	if len(cfg.Models) != len(other.Models) {
		return false
	}
	for i := range cfg.Models {
		if cfg.Models[i] != other.Models[i] {
			return false
		}
	}
	return true
}
