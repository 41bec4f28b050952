package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/conference-checkin/internal/config"
	"github.com/iliyamo/conference-checkin/internal/database"
	"github.com/iliyamo/conference-checkin/internal/handler"
	"github.com/iliyamo/conference-checkin/internal/i18n"
	"github.com/iliyamo/conference-checkin/internal/middleware"
	"github.com/iliyamo/conference-checkin/internal/queue"
	"github.com/iliyamo/conference-checkin/internal/repository"
	"github.com/iliyamo/conference-checkin/internal/router"
	"github.com/iliyamo/conference-checkin/internal/service"
	"github.com/iliyamo/conference-checkin/internal/utils"
)

func main() {
	cfg := config.Load()
	loc := cfg.Location()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	sealer, err := utils.NewCredentialSealer(cfg.CredentialSecret)
	if err != nil {
		log.Fatalf("credential sealer: %v", err)
	}

	var notifier service.Notifier = service.NopNotifier{}
	if cfg.NotifyEnabled {
		notifier = service.NewAMQPPublisher(cfg.RabbitURL)
	}

	participants := repository.NewParticipantRepo(db)
	events := repository.NewEventRepo(db)
	attendance := repository.NewAttendanceRepo(db)
	seatingRepo := repository.NewSeatingRepo(db)
	vehicles := repository.NewVehicleRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	registry := service.NewRegistry(participants, events, sealer, notifier, cfg.DisplayIDPrefix, cfg.BcryptCost, loc)
	verifier := service.NewVerifier(participants, events, attendance, sealer, cfg.DisplayIDPrefix, loc)
	seating := service.NewSeating(seatingRepo, participants, events, notifier, service.ExcludeTypes(cfg.SeatingExcludedTypes))
	transport := service.NewTransport(vehicles, participants, notifier)
	programme := service.NewProgramme(events, loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, cfg.BcryptCost)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			log.Printf("bootstrap admin %s created", cfg.BootstrapAdminEmail)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.RegisterRoutes(e, handler.Ready(db))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewEventHandler(programme),
		middleware.ResponseCache(config.LoadCacheConfig(), rdb))
	router.RegisterParticipant(e, handler.NewParticipantHandler(cfg, registry), cfg.JWTSecret,
		middleware.RateLimit(config.LoadRateLimitConfig("register", 10), rdb))
	router.RegisterCheckin(e, handler.NewCheckinHandler(verifier), cfg.JWTSecret,
		middleware.RateLimit(config.LoadRateLimitConfig("scan", 120), rdb))
	router.RegisterAdmin(e, router.Admin{
		Events:       handler.NewEventHandler(programme),
		Participants: handler.NewParticipantHandler(cfg, registry),
		Checkin:      handler.NewCheckinHandler(verifier),
		Seating:      handler.NewSeatingHandler(seating),
		Vehicles:     handler.NewVehicleHandler(transport),
	}, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.NotifyEnabled {
		consumer := queue.NewConsumer(cfg.RabbitURL, i18n.NewTranslator(cfg.NotifyLocale),
			queue.NewFileDeliverer(cfg.NotifyLogPath), cfg.NotifyLocale, loc)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	addr := ":" + cfg.Port
	g.Go(func() error {
		log.Printf("listening on %s (env=%s, tz=%s)", addr, cfg.Env, loc)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}
