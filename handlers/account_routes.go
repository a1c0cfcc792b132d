package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"node-ledger/middleware"
	"node-ledger/models"
	"node-ledger/services"
)

type withdrawRequest struct {
	BalanceType string          `json:"balance_type" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

func SetupAccountRoutes(r fiber.Router, auth *services.AuthService, withdrawals *services.WithdrawalService, referrals *services.ReferralService) {
	r.Get("/user/profile", func(c *fiber.Ctx) error {
		user, err := auth.Profile(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user": toUserDTO(user)})
	})

	r.Post("/withdraw", func(c *fiber.Ctx) error {
		var req withdrawRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		bt := models.BalanceType(req.BalanceType)
		if _, err := withdrawals.Withdraw(c.UserContext(), middleware.UserID(c), bt, req.Amount); err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Successfully withdrew %s TRX from %s balance", req.Amount.String(), bt),
		})
	})

	r.Get("/withdrawals", func(c *fiber.Ctx) error {
		list, err := withdrawals.History(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		out := make([]withdrawalDTO, 0, len(list))
		for _, w := range list {
			out = append(out, toWithdrawalDTO(w))
		}
		return c.JSON(fiber.Map{"withdrawals": out})
	})

	r.Get("/referrals", func(c *fiber.Ctx) error {
		summary, err := referrals.Summary(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"refer_code":        summary.ReferCode,
			"valid_referrals":   summary.ValidReferrals,
			"invalid_referrals": summary.PendingReferrals,
			"total_earned":      summary.TotalEarned.InexactFloat64(),
		})
	})
}
