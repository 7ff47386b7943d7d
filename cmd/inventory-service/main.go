package main

import (
	"context"
	"os"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/config"
	"atelier/internal/pkg/database"
	"atelier/internal/pkg/logger"
	"atelier/internal/service/inventory/infrastructure"
	"atelier/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

func main() {
	logger.Init(serviceName)
	lg := logger.Ctx(context.Background())

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.Open(cfg.Infra.MySQL.Addr, cfg.Infra.MySQL.User, cfg.Infra.MySQL.Password, cfg.Infra.MySQL.Database)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to connect mysql")
	}
	if err := db.AutoMigrate(&infrastructure.ItemModel{}, &infrastructure.ReservationModel{}); err != nil {
		lg.Fatal().Err(err).Msg("failed to migrate schema")
	}

	catalog := infrastructure.NewGormCatalog(db)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewCatalogHandler(catalog).RegisterRoutes(appCtx.Mux)
		},
	})
}
