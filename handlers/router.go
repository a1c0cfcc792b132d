package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"node-ledger/middleware"
	"node-ledger/services"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	DB          *gorm.DB
	Catalog     *services.Catalog
	Auth        *services.AuthService
	Nodes       *services.NodeService
	Purchases   *services.PurchaseService
	Withdrawals *services.WithdrawalService
	Referrals   *services.ReferralService
	Feed        *services.FeedService

	TRXAddress     string
	AllowedOrigins []string
}

// NewApp wires middleware and every route.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Output: log.StandardLogger().WriterLevel(log.InfoLevel),
		Format: "[HTTP] ${status} ${method} ${path} ${latency}\n",
	}))

	origins := strings.Join(d.AllowedOrigins, ",")
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	SetupPublicRoutes(app, d)
	SetupAuthRoutes(app, d.Auth)

	secured := app.Group("/api", middleware.RequireUser(d.Auth))
	SetupNodeRoutes(secured, d.Catalog, d.Nodes, d.Purchases)
	SetupAccountRoutes(secured, d.Auth, d.Withdrawals, d.Referrals)

	return app
}
