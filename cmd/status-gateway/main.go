package main

import (
	"context"
	"net/http"
	"os"

	"github.com/google/uuid"

	"atelier/internal/gateway"
	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/config"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/redis"
	authapp "atelier/internal/service/auth/application"
	authinfra "atelier/internal/service/auth/infrastructure"
)

const serviceName = "status-gateway"

func main() {
	logger.Init(serviceName)
	lg := logger.Ctx(context.Background())

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to load config")
	}

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to connect redis")
	}
	sessions, err := authinfra.NewRedisSessionStore(redisClient)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to init session store")
	}
	tokens := authapp.NewTokenService([]byte(cfg.Auth.SigningKey), sessions, cfg.Auth.AccessTTL.Std(), cfg.Auth.RefreshTTL.Std())

	hub := gateway.NewHub()
	// unique group per node so every gateway sees every event
	feed := gateway.NewFeed(hub, cfg.KafkaBrokers(), serviceName+"-"+uuid.NewString()[:8])

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(rootCtx)
	go feed.Run(rootCtx)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8086,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				gateway.ServeWS(hub, tokens, w, r)
			})
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancel()
				redisClient.Close()
			},
		},
	})
}
