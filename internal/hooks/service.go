package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nexusbridge/sequencer/pkg/logger"
)

// maxHookResponseSize bounds how much of a webhook's response body is
// ever read, mirroring the size-limited reads elsewhere in this
// codebase (chainreader.IndexerClient, the relay backends).
const maxHookResponseSize = 64 * 1024

func postEvent(ctx context.Context, client *http.Client, url string, event Event) (Result, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return Result{}, fmt.Errorf("encode hook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("hook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHookResponseSize))

	if resp.StatusCode >= 300 {
		return Result{Success: false, Error: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}, nil
	}
	return Result{Success: true}, nil
}

// Service dispatches auction lifecycle events to every registered,
// enabled hook of the matching type, in ascending priority order.
// Adapted from the teacher's container.Service (internal/container/
// service.go): same register/execute/fail-open shape, repurposed from
// bid-lifecycle hooks to auction-lifecycle hooks.
type Service struct {
	mu      sync.RWMutex
	hooks   map[string]Hook
	config  *ServiceConfig
	enabled bool
}

// ServiceConfig configures the hook service.
type ServiceConfig struct {
	Enabled        bool
	DefaultTimeout time.Duration
	// FailOpen: a hook error never blocks the auction pipeline. The
	// core's correctness never depends on a hook completing.
	FailOpen bool
}

// DefaultServiceConfig returns sensible defaults: disabled until an
// operator configures at least one hook.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Enabled:        false,
		DefaultTimeout: 200 * time.Millisecond,
		FailOpen:       true,
	}
}

// NewService creates a hook service. config may be nil.
func NewService(config *ServiceConfig) *Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	return &Service{
		hooks:   make(map[string]Hook),
		config:  config,
		enabled: config.Enabled,
	}
}

// Register adds a hook. Hook names must be unique.
func (s *Service) Register(hook Hook) error {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}
	name := hook.Name()
	if name == "" {
		return fmt.Errorf("hook name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.hooks[name]; exists {
		return fmt.Errorf("hook %s already registered", name)
	}
	s.hooks[name] = hook
	logger.Log.Info().Str("hook", name).Str("type", string(hook.Type())).Msg("lifecycle hook registered")
	return nil
}

// Unregister removes a hook by name.
func (s *Service) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hooks[name]; !exists {
		return fmt.Errorf("hook %s not found", name)
	}
	delete(s.hooks, name)
	return nil
}

// hooksFor returns enabled hooks matching eventType, sorted by
// ascending priority.
func (s *Service) hooksFor(eventType EventType) []Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Hook
	for _, h := range s.hooks {
		if h.Type() == eventType && h.IsEnabled() {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Priority() < result[j].Priority() })
	return result
}

// Fire runs every enabled hook registered for event.Type, in priority
// order. Hook failures are logged and swallowed when FailOpen (the
// default); the auction pipeline that calls Fire never blocks on, or
// fails because of, a misbehaving hook.
func (s *Service) Fire(ctx context.Context, event Event) {
	if !s.enabled {
		return
	}
	hooks := s.hooksFor(event.Type)
	for _, h := range hooks {
		hookCtx, cancel := context.WithTimeout(ctx, s.config.DefaultTimeout)
		start := time.Now()
		result, err := h.Execute(hookCtx, event)
		cancel()

		log := logger.Log.With().Str("hook", h.Name()).Str("type", string(event.Type)).Logger()
		if err != nil || !result.Success {
			log.Warn().Err(err).Str("transferId", event.TransferID).Dur("duration", time.Since(start)).Msg("lifecycle hook failed")
			if !s.config.FailOpen {
				return
			}
			continue
		}
		log.Debug().Str("transferId", event.TransferID).Dur("duration", time.Since(start)).Msg("lifecycle hook executed")
	}
}

// Enable turns the hook service on.
func (s *Service) Enable() { s.mu.Lock(); defer s.mu.Unlock(); s.enabled = true }

// Disable turns the hook service off; Fire becomes a no-op.
func (s *Service) Disable() { s.mu.Lock(); defer s.mu.Unlock(); s.enabled = false }

// LocalRuntime executes a hook in-process by calling a Go closure —
// the "local" runtime option, for operator code compiled into the
// binary rather than reached over HTTP.
type LocalRuntime struct {
	Fn func(ctx context.Context, event Event) (Result, error)
}

func (r *LocalRuntime) Name() string { return "local" }

func (r *LocalRuntime) Execute(ctx context.Context, _ RuntimeConfig, event Event) (Result, error) {
	if r.Fn == nil {
		return Result{Success: true}, nil
	}
	return r.Fn(ctx, event)
}

// HTTPRuntime posts the event as JSON to a configured webhook URL.
type HTTPRuntime struct {
	Client *http.Client
}

func (r *HTTPRuntime) Name() string { return "http" }

func (r *HTTPRuntime) Execute(ctx context.Context, cfg RuntimeConfig, event Event) (Result, error) {
	if cfg.URL == "" {
		return Result{}, fmt.Errorf("http runtime requires a URL")
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	return postEvent(ctx, client, cfg.URL, event)
}

// ConfiguredHook is a Hook backed by a RuntimeConfig and a Runtime
// implementation, wired together the way the teacher's
// ConfigurableHook wires a HookConfig to a container.Runtime.
type ConfiguredHook struct {
	cfg     HookConfig
	runtime Runtime
}

// NewConfiguredHook creates a hook from config, dispatched through runtime.
func NewConfiguredHook(cfg HookConfig, runtime Runtime) *ConfiguredHook {
	return &ConfiguredHook{cfg: cfg, runtime: runtime}
}

func (h *ConfiguredHook) Type() EventType  { return h.cfg.Type }
func (h *ConfiguredHook) Name() string     { return h.cfg.Name }
func (h *ConfiguredHook) Priority() int    { return h.cfg.Priority }
func (h *ConfiguredHook) IsEnabled() bool  { return h.cfg.Enabled }

func (h *ConfiguredHook) Execute(ctx context.Context, event Event) (Result, error) {
	if h.runtime == nil {
		return Result{Success: true}, nil
	}
	return h.runtime.Execute(ctx, h.cfg.Runtime, event)
}
