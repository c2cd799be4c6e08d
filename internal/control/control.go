// Package control implements the proxy's localhost-only HTTP administration
// surface: cache statistics, purge operations, health, shutdown and config
// reload.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/jasbeersinghchauhan/httpproxy/internal/cache"
	"github.com/jasbeersinghchauhan/httpproxy/internal/config"
	"github.com/jasbeersinghchauhan/httpproxy/internal/logging"
)

// ControlAPI provides an HTTP interface for managing the cache and the
// running proxy process. It refuses to bind to anything but a loopback
// address, since none of its endpoints require authentication.
type ControlAPI struct {
	logger    *slog.Logger
	config    *config.Config
	cache     *cache.Cache
	startTime time.Time
	server    *http.Server
	shutdown  func() // triggers graceful process shutdown
	onReload  func(*config.Config)
}

// NewControlAPI creates a new ControlAPI instance. onReload, if non-nil, is
// invoked with the freshly loaded configuration whenever /reload succeeds
// or SIGHUP is handled, so callers can propagate values (such as timeouts)
// that the proxy server reads from config but the ControlAPI does not own.
func NewControlAPI(logger *slog.Logger, cfg *config.Config, c *cache.Cache, shutdown func(), onReload func(*config.Config)) *ControlAPI {
	return &ControlAPI{
		logger:    logger,
		config:    cfg,
		cache:     c,
		startTime: time.Now(),
		shutdown:  shutdown,
		onReload:  onReload,
	}
}

// Start runs the Control API server. It blocks until the server stops.
func (a *ControlAPI) Start() error {
	addr := fmt.Sprintf("%s:%d", a.config.Server.BindAddress, a.config.Server.ControlPort)

	bindHost := a.config.Server.BindAddress
	if bindHost != "127.0.0.1" && bindHost != "localhost" && bindHost != "::1" {
		return fmt.Errorf("control API refuses to bind to non-loopback address: %s", bindHost)
	}

	a.logger.Info("starting control API", "address", addr)

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", a.handleStats)
	mux.HandleFunc("/purge/all", a.handlePurgeAll)
	mux.HandleFunc("/purge/url", a.handlePurgeURL)
	mux.HandleFunc("/purge/domain/", a.handlePurgeDomain)
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/shutdown", a.handleShutdown)
	mux.HandleFunc("/reload", a.handleReload)

	a.server = &http.Server{
		Addr:    addr,
		Handler: a.withAccessLog(mux),
	}

	err := a.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// withAccessLog wraps next so every Control API request is debug-logged
// with its status code and response size, as captured by
// logging.CountingResponseWriter.
func (a *ControlAPI) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		crw := logging.NewCountingResponseWriter(w)
		next.ServeHTTP(crw, r)
		a.logger.Debug("control API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", crw.StatusCode(),
			"bytes", crw.Size(),
			"duration", time.Since(start),
		)
	})
}

// Shutdown gracefully shuts down the control API server.
func (a *ControlAPI) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down control API")
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// ReloadConfig reloads configuration from the file it was originally loaded
// from and notifies the registered callback.
func (a *ControlAPI) ReloadConfig() error {
	newCfg, err := config.LoadConfig(a.config.LoadedPath)
	if err != nil {
		return fmt.Errorf("failed to reload config file: %w", err)
	}
	a.config = newCfg
	if a.onReload != nil {
		a.onReload(newCfg)
	}
	a.logger.Info("configuration reloaded successfully")
	return nil
}

func (a *ControlAPI) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.ReloadConfig(); err != nil {
		a.logger.Error("failed to reload config via API", "error", err)
		http.Error(w, "Failed to reload config", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Configuration reloaded")
}

func (a *ControlAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.logger.Info("shutdown request received via API")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Shutdown initiated...")

	go a.shutdown()
}

func (a *ControlAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.logger.Debug("stats endpoint accessed", "remoteAddr", r.RemoteAddr)

	stats := a.cache.Stats()
	totalRequests := stats.Hits + stats.Misses
	var hitRate float64
	if totalRequests > 0 {
		hitRate = (float64(stats.Hits) / float64(totalRequests)) * 100
	}

	response := map[string]interface{}{
		"hit_count":        stats.Hits,
		"miss_count":       stats.Misses,
		"eviction_count":   stats.Evictions,
		"hit_rate_percent": fmt.Sprintf("%.2f", hitRate),
		"entry_count":      stats.EntryCount,
		"cache_size_bytes": stats.TotalBytes,
		"cache_max_bytes":  a.cache.MaxBytes(),
		"uptime_seconds":   fmt.Sprintf("%.2f", time.Since(a.startTime).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error("failed to encode stats response", "error", err)
	}
}

func (a *ControlAPI) handlePurgeAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	count := a.cache.PurgeAll()
	a.logger.Info("purged all cache entries", "count", count)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"purged_count": count,
	}); err != nil {
		a.logger.Error("failed to encode purge all response", "error", err)
	}
}

type purgeURLRequest struct {
	URL string `json:"url"`
}

func (a *ControlAPI) handlePurgeURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req purgeURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}
	found := a.cache.PurgeURL(req.URL)
	a.logger.Info("purge request by URL", "url", req.URL, "found", found)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"url":    req.URL,
		"purged": found,
	}); err != nil {
		a.logger.Error("failed to encode purge url response", "error", err)
	}
}

func (a *ControlAPI) handlePurgeDomain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	domain := strings.TrimPrefix(r.URL.Path, "/purge/domain/")
	if domain == "" {
		http.Error(w, "Domain is required", http.StatusBadRequest)
		return
	}
	count := a.cache.PurgeDomain(domain)
	a.logger.Info("purged cache entries by domain", "domain", domain, "count", count)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"domain":       domain,
		"purged_count": count,
	}); err != nil {
		a.logger.Error("failed to encode purge domain response", "error", err)
	}
}

func (a *ControlAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response := map[string]interface{}{
		"status":      "ok",
		"go_version":  runtime.Version(),
		"uptime":      time.Since(a.startTime).String(),
		"config_file": a.config.LoadedPath,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error("failed to encode health response", "error", err)
	}
}
