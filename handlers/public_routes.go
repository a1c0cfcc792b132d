package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func SetupPublicRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if d.DB != nil {
			sqlDB, err := d.DB.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/api/config", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"trx_address": d.TRXAddress,
			"nodes":       tierMap(d.Catalog),
		})
	})

	app.Get("/api/mock-withdrawals", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"withdrawals": d.Feed.Feed(c.UserContext())})
	})
}
