package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/americansport/gymgate/internal/config"
	"github.com/americansport/gymgate/internal/db"
	"github.com/americansport/gymgate/internal/gate/service"
	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/store/memory"
	"github.com/americansport/gymgate/internal/gate/store/snapshot"
	"github.com/americansport/gymgate/internal/gate/store/sqlite"
	"github.com/americansport/gymgate/internal/grpcapi"
	"github.com/americansport/gymgate/internal/httpapi"
	"github.com/americansport/gymgate/internal/logger"
)

const shutdownTimeout = 5 * time.Second

type ServeCmd struct {
	config.Config `embed:""`
}

func (c *ServeCmd) Run(ctx context.Context) error {
	cfg := c.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.Setup(cfg.Dev())

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ids, err := loadIdentities(cfg)
	if err != nil {
		return err
	}

	slots, err := service.NewSlotResolver(service.SystemClock, loc, service.RotationIntervalMinutes)
	if err != nil {
		return err
	}
	tokens, err := service.NewTokenIssuer(slots, service.DefaultOperatingWindow(loc), cfg.TokenSecret, cfg.TokenPrefix)
	if err != nil {
		return err
	}
	gate := service.NewGateService(tokens, ids, st, log)

	sweeper := service.NewSessionSweeper(gate, service.SweeperConfig{
		Enabled:  cfg.SweepEnabled,
		Interval: cfg.SweepInterval,
	}, log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Only the snapshot store exposes whole-document admin operations.
	snap, _ := st.(httpapi.SnapshotAdmin)

	srv, err := httpapi.NewServer(httpapi.Dependencies{
		Logger:      log,
		Addr:        cfg.HTTPAddr,
		Gate:        gate,
		Sweeper:     sweeper,
		Identities:  ids,
		TicketKey:   []byte(cfg.TicketKey),
		GateBaseURL: cfg.GateBaseURL,
		Snapshot:    snap,
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreType).Str("tz", loc.String()).Msg("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	var health *grpcapi.HealthServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		health = grpcapi.NewHealthServer(log)
		go func() {
			if err := health.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errc:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	if health != nil {
		health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("http shutdown")
	}
	return err
}

// openStore returns the configured ledger and a func releasing its resources.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.AttendanceStore, func(), error) {
	switch cfg.StoreType {
	case "memory":
		return memory.NewAttendanceStore(), func() {}, nil

	case "snapshot":
		s, err := snapshot.Open(cfg.SnapshotPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open snapshot: %w", err)
		}
		return s, func() {}, nil

	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if cfg.Dev() {
			if err := db.SeedDev(ctx, conn, db.SeedDevOptions{MemberID: service.DemoMemberID}); err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("seed dev: %w", err)
			}
		}
		writer := db.NewWriter(conn)
		return sqlite.NewAttendanceStore(conn, writer), func() {
			writer.Close()
			conn.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store type %q", cfg.StoreType)
}

func loadIdentities(cfg config.Config) (*service.StaticIdentities, error) {
	accounts := service.DemoAccounts()
	if cfg.AccountsFile != "" {
		var err error
		if accounts, err = service.LoadAccountsFile(cfg.AccountsFile); err != nil {
			return nil, err
		}
	} else if !cfg.Dev() {
		return nil, errors.New("accounts file is required outside dev")
	}
	return service.NewStaticIdentities(accounts, bcrypt.DefaultCost)
}
