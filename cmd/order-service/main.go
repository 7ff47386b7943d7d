package main

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/config"
	"atelier/internal/pkg/database"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/pkg/redis"
	"atelier/internal/pkg/zookeeper"
	authapp "atelier/internal/service/auth/application"
	authinfra "atelier/internal/service/auth/infrastructure"
	invapp "atelier/internal/service/inventory/application"
	invdomain "atelier/internal/service/inventory/domain"
	invinfra "atelier/internal/service/inventory/infrastructure"
	"atelier/internal/service/order/application"
	"atelier/internal/service/order/domain"
	"atelier/internal/service/order/infrastructure"
	"atelier/internal/service/order/interfaces"
	"atelier/internal/service/pricing"
)

const serviceName = "order-service"

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
	if err := db.AutoMigrate(
		&invinfra.ItemModel{}, &invinfra.ReservationModel{},
		&infrastructure.OrderModel{}, &infrastructure.OrderLineModel{},
	); err != nil {
		lg.Fatal().Err(err).Msg("failed to migrate schema")
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

	discounts, err := pricing.NewEngine(cfg.Order.DiscountRule)
	if err != nil {
		lg.Fatal().Err(err).Msg("invalid discount rule")
	}

	ledger := invinfra.NewGormLedger(db)
	repo := infrastructure.NewGormOrderRepository(db)
	publisher := infrastructure.NewKafkaEventPublisher(cfg.KafkaBrokers(),
		domain.TopicOrderCreated, domain.TopicOrderCancelled)

	svc := application.NewOrderService(repo, ledger, publisher, tokens, discounts,
		otel.Tracer(serviceName), cfg.Order.ReservationTTL.Std())

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failures := mq.NewFailureHandler(cfg.KafkaBrokers(), 3)
	confirmed := infrastructure.NewPaymentConsumer(cfg.KafkaBrokers(),
		domain.TopicPaymentConfirmed, "order-payment-confirmed", svc.HandlePaymentConfirmed, failures)
	failed := infrastructure.NewPaymentConsumer(cfg.KafkaBrokers(),
		domain.TopicPaymentFailed, "order-payment-failed", svc.HandlePaymentFailed, failures)
	confirmed.Start(rootCtx)
	failed.Start(rootCtx)

	sweeper := invapp.NewSweeper(ledger, sweepLeadership(cfg), cfg.Order.SweepInterval.Std())
	sweeper.OnExpired = func(ctx context.Context, r invdomain.Reservation) {
		svc.HandleReservationExpired(ctx, r)
	}
	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error { return sweeper.Run(groupCtx) })

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewOrderHandler(svc).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: []func(ctx context.Context){
			func(ctx context.Context) {
				cancel()
				group.Wait()
				confirmed.Stop()
				failed.Stop()
				failures.Close()
				publisher.Close()
				redisClient.Close()
			},
		},
	})
}

// sweepLeadership builds the ZooKeeper lock guarding the expiry sweep. With
// no ensemble configured, or one we cannot reach at startup, the replica
// sweeps unconditionally; the ledger's conditional updates keep that safe,
// just noisier.
func sweepLeadership(cfg *config.Config) invapp.Leadership {
	lg := logger.Ctx(context.Background())
	if cfg.Infra.Zookeeper.Addrs == "" {
		return invapp.AlwaysLeader()
	}
	conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Addrs)
	if err != nil {
		lg.Warn().Err(err).Msg("zookeeper unreachable, sweeping without leadership")
		return invapp.AlwaysLeader()
	}
	lock, err := zookeeper.NewDistributedLock(conn, "reservation-sweep")
	if err != nil {
		lg.Warn().Err(err).Msg("could not prepare sweep lock, sweeping without leadership")
		return invapp.AlwaysLeader()
	}
	return lock
}
