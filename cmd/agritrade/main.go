package main

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"agritrade/internal/config"
	"agritrade/internal/events"
	"agritrade/internal/http/handlers"
	applog "agritrade/internal/log"
	"agritrade/internal/repos"
	"agritrade/internal/sweeper"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	// Event fanout: in-process WebSocket hub, plus NATS mirror when configured
	hub := events.NewHub()
	go hub.Run()
	sink := events.Fanout{hub}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL, "auction.events")
		if err != nil {
			log.Printf("[warn] NATS disabled: %v", err)
		} else {
			defer np.Close()
			sink = append(sink, np)
		}
	}

	deps := handlers.NewDeps(db, sink, hub)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= 500 {
				applog.Error(c, "server.error", err, nil)
			}
			return c.Status(code).JSON(fiber.Map{"error": "request failed"})
		},
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	// ---------- Middlewares ----------
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	auth := handlers.RequireUser(deps.Users)

	// ---------- API ----------
	api := app.Group("/api/v1", auth)

	api.Post("/products", handlers.RequireRole("FARMER"), deps.ProductHandler.Create)
	api.Get("/products", deps.ProductHandler.List)
	api.Get("/products/:id", deps.ProductHandler.Get)

	api.Post("/auctions", handlers.RequireRole("FARMER"), deps.AuctionHandler.Create)
	api.Get("/auctions", deps.AuctionHandler.List)
	api.Get("/auctions/:id", deps.AuctionHandler.Get)
	api.Post("/auctions/:id/cancel", handlers.RequireRole("FARMER"), deps.AuctionHandler.Cancel)

	// Bid submission is the hot path; throttle it per caller IP.
	bidLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|bid"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.bid.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Post("/auctions/:id/bids", handlers.RequireRole("TRADER"), bidLimiter, deps.BidHandler.Place)
	api.Get("/bids", deps.BidHandler.Mine)
	api.Post("/bids/:id/accept", handlers.RequireRole("FARMER"), deps.BidHandler.Accept)
	api.Post("/bids/:id/reject", handlers.RequireRole("FARMER"), deps.BidHandler.Reject)

	api.Get("/orders", deps.OrderHandler.Mine)
	api.Get("/orders/:id", deps.OrderHandler.Get)
	api.Post("/orders/:id/status", deps.OrderHandler.UpdateStatus)

	api.Get("/notifications", deps.NotificationHandler.List)
	api.Post("/notifications/:id/read", deps.NotificationHandler.MarkRead)

	// ---------- Realtime feed ----------
	app.Get("/ws/auctions/:id", handlers.Upgrade(), deps.WSHandler.Feed())

	// ---------- Expiry sweep ----------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.New(deps.AuctionSvc, cfg.SweepInterval).Run(ctx)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	})

	log.Fatal(app.Listen(":" + cfg.Port))
}
