package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"node-ledger/middleware"
	"node-ledger/services"
)

type purchaseRequest struct {
	NodeID          string `json:"node_id" validate:"required"`
	TransactionHash string `json:"transaction_hash"`
}

func SetupNodeRoutes(r fiber.Router, catalog *services.Catalog, nodes *services.NodeService, purchases *services.PurchaseService) {
	r.Get("/nodes", func(c *fiber.Ctx) error {
		statuses, err := nodes.Status(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		out := make(map[string]nodeStatusDTO, len(statuses))
		for _, st := range statuses {
			out[st.Tier.ID] = toNodeStatusDTO(st)
		}
		return c.JSON(fiber.Map{"nodes": out})
	})

	r.Post("/nodes/purchase", func(c *fiber.Ctx) error {
		var req purchaseRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		inst, err := purchases.Purchase(c.UserContext(), middleware.UserID(c), req.NodeID, req.TransactionHash)
		if err != nil {
			return err
		}
		tier, err := catalog.Tier(inst.TierID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": fmt.Sprintf("Successfully purchased %s! Mining started.", tier.Name),
			"node":    toNodeDTO(inst, tier),
		})
	})
}
