package api

import (
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"go.uber.org/zap"

	"egg-arena/internal/config"
	"egg-arena/internal/metrics"
)

// StartDebugServer serves pprof and Prometheus metrics in the background.
// Non-loopback addresses are forced to loopback unless
// ALLOW_DEBUG_EXTERNAL=true. It returns nil when disabled.
func StartDebugServer(cfg config.DebugConfig, log *zap.Logger) *http.Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("debug")
	if !cfg.Enabled {
		log.Info("debug server disabled")
		return nil
	}

	addr := cfg.ListenAddr
	if !isLoopback(addr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Warn("debug server forced to loopback", zap.String("requested", addr))
		addr = config.DefaultDebug().ListenAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           debugMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("debug server listening",
			zap.String("pprof", "http://"+addr+"/debug/pprof/"),
			zap.String("metrics", "http://"+addr+"/metrics"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("debug server stopped", zap.Error(err))
		}
	}()
	return srv
}

func debugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", handleHealth)
	return mux
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
