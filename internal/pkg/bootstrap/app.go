package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"atelier/internal/pkg/config"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/nacos"
	"atelier/internal/pkg/tracing"
)

// AppCtx is handed to each service's route registration hook.
type AppCtx struct {
	Mux    *http.ServeMux
	Config *config.Config
}

// AppInfo describes one service to StartService.
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// OnShutdown hooks run LIFO during graceful shutdown, before the HTTP
	// server is closed.
	OnShutdown []func(ctx context.Context)
}

// StartService wires the lifecycle every service shares: config, tracing,
// Nacos registration, the HTTP server, and graceful shutdown on
// SIGINT/SIGTERM.
func StartService(cfg *config.Config, info AppInfo) {
	logger.Init(info.ServiceName)
	lg := logger.Ctx(context.Background())

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	naming, err := nacos.NewClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	ip, err := outboundIP()
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to determine outbound IP")
	}

	if err := naming.Register(info.ServiceName, ip, info.Port); err != nil {
		lg.Fatal().Err(err).Msg("failed to register service with nacos")
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		lg.Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info().Msgf("shutting down %s", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// cleanup runs LIFO: service-specific hooks, registry, tracer, server
	for i := len(info.OnShutdown) - 1; i >= 0; i-- {
		info.OnShutdown[i](ctx)
	}

	if err := naming.Deregister(info.ServiceName, ip, info.Port); err != nil {
		lg.Error().Err(err).Msg("error deregistering from nacos")
	}

	if err := tp.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Msg("error shutting down tracer provider")
	}

	if err := server.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Msg("error shutting down http server")
	}

	lg.Info().Msgf("%s stopped", info.ServiceName)
}

// outboundIP finds the primary local address by dialing out (no packets are
// actually sent for UDP).
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
