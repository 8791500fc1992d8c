package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-records/library/config"
	"github.com/Astemirdum/library-records/library/internal/handler"
	"github.com/Astemirdum/library-records/library/internal/repository"
	"github.com/Astemirdum/library-records/library/internal/server"
	"github.com/Astemirdum/library-records/library/internal/service"
	"github.com/Astemirdum/library-records/library/internal/telemetry"
	"github.com/Astemirdum/library-records/library/migrations"
	"github.com/Astemirdum/library-records/pkg/kafka"
	"github.com/Astemirdum/library-records/pkg/logger"
	"github.com/Astemirdum/library-records/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "library")
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %w", err)
	}
	defer db.Close()

	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %w", err)
	}

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, os.Stdout)
	if err != nil {
		return fmt.Errorf("telemetry %w", err)
	}
	recorders := []telemetry.Recorder{telemetry.NewOTel(provider.Meter(), provider.Tracer(), log)}

	var stream *telemetry.LoanStream
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			// loan events are best effort
			log.Warn("kafka.NewProducer", zap.Error(err))
		} else {
			stream = telemetry.NewLoanStream(producer, kafka.LoanTopic, cfg.Kafka.Buffer, log)
			recorders = append(recorders, stream)
		}
	}

	svc := service.NewService(repo, telemetry.Multi(recorders...), log)
	h := handler.New(svc, log, handler.WithTracerProvider(provider.TracerProvider()))
	srv := server.NewServer(cfg.Server, h.NewRouter())

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server start ON: ",
			zap.String("addr",
				net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
		return srv.Run()
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Graceful shutdown", zap.Error(context.Cause(gCtx)))

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		if err := srv.Stop(closeCtx); err != nil {
			log.Error("srv.Stop", zap.Error(err))
		}
		if stream != nil {
			if err := stream.Close(); err != nil {
				log.Error("stream.Close", zap.Error(err))
			}
		}
		if err := provider.Shutdown(closeCtx); err != nil {
			log.Error("provider.Shutdown", zap.Error(err))
		}
		return nil
	})

	if err = g.Wait(); err != nil {
		return fmt.Errorf("server run %w", err)
	}
	log.Info("Graceful shutdown finished")
	return nil
}
