package main

import (
	"context"
	"os"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/config"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/redis"
	"atelier/internal/service/auth/application"
	"atelier/internal/service/auth/infrastructure"
	"atelier/internal/service/auth/interfaces"
)

const serviceName = "auth-service"

func main() {
	logger.Init(serviceName)
	lg := logger.Ctx(context.Background())

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Auth.SigningKey == "" {
		lg.Fatal().Msg("AUTH_SIGNING_KEY must be set")
	}

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to connect redis")
	}
	sessions, err := infrastructure.NewRedisSessionStore(redisClient)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to init session store")
	}
	tokens := application.NewTokenService([]byte(cfg.Auth.SigningKey), sessions, cfg.Auth.AccessTTL.Std(), cfg.Auth.RefreshTTL.Std())

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8085,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewAuthHandler(tokens).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) { redisClient.Close() },
		},
	})
}
