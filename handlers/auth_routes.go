package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"node-ledger/services"
)

type signupRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=32"`
	Password  string `json:"password" validate:"required,min=6"`
	ReferCode string `json:"refer_code"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func SetupAuthRoutes(app *fiber.App, auth *services.AuthService) {
	g := app.Group("/api/auth")

	g.Post("/signup", func(c *fiber.Ctx) error {
		var req signupRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		user, token, err := auth.Signup(c.UserContext(), req.Username, req.Password, req.ReferCode)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Sign up successful! Claim your %s TRX bonus!", services.SignupBonus.String()),
			"token":   token,
			"user":    toUserDTO(user),
		})
	})

	g.Post("/login", func(c *fiber.Ctx) error {
		var req loginRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		user, token, err := auth.Login(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"token":   token,
			"user":    toUserDTO(user),
		})
	})
}
