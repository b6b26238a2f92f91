package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/config"
	"github.com/iliyamo/asset-checkout-kiosk/internal/coordinator"
	"github.com/iliyamo/asset-checkout-kiosk/internal/database"
	"github.com/iliyamo/asset-checkout-kiosk/internal/decoder"
	"github.com/iliyamo/asset-checkout-kiosk/internal/handler"
	"github.com/iliyamo/asset-checkout-kiosk/internal/inventory"
	"github.com/iliyamo/asset-checkout-kiosk/internal/ratelimit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/router"
	"github.com/iliyamo/asset-checkout-kiosk/internal/session"
)

func main() {
	// Local development keys live in .env; absence is fine in prod.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("audit database: %v", err)
	}
	defer db.Close()

	// Sessions and rate limits both live in Redis. Unlike a cache this
	// store is load-bearing for security decisions, so failing to reach
	// it at startup is fatal rather than degraded.
	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	recorder := audit.NewRecorder(audit.NewMySQLSink(db), audit.NewQueueSink())
	limiter := ratelimit.New(ratelimit.NewRedisStore(rdb), config.LoadRateLimitConfig(), recorder)
	sessions := session.NewManager(session.NewRedisStore(rdb), cfg.SessionIdle, cfg.SessionLifetime)
	inv := inventory.NewClient(cfg.InventoryURL, cfg.InventoryToken, cfg.APITimeout, cfg.APIRetries)
	coord := coordinator.New(inv, limiter, recorder)
	pipeline := decoder.New(decoder.Config{
		MaxImageBytes: cfg.MaxImageBytes,
		Budget:        cfg.DecodeBudget,
	})

	adminH, err := handler.NewAdminHandler(cfg, coord, recorder)
	if err != nil {
		log.Fatalf("admin handler: %v", err)
	}

	// The consumer mirrors audit events from the queue into the local
	// append-only file, reconnecting on its own schedule.
	go func() {
		if err := audit.StartConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Auth:      handler.NewAuthHandler(cfg, sessions, inv, pipeline, recorder),
		Scan:      handler.NewScanHandler(pipeline, inv, recorder),
		Assets:    handler.NewAssetHandler(coord, inv),
		Admin:     adminH,
		Sessions:  sessions,
		Limiter:   limiter,
		JWTSecret: cfg.JWTSecret,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
