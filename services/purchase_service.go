package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"node-ledger/models"
)

// PurchaseService turns a client purchase submission into a confirmed node.
type PurchaseService struct {
	nodes         *NodeService
	catalog       *Catalog
	oracle        PaymentOracle
	verifyTimeout time.Duration
}

func NewPurchaseService(nodes *NodeService, catalog *Catalog, oracle PaymentOracle, verifyTimeout time.Duration) *PurchaseService {
	if oracle == nil {
		oracle = OptimisticOracle{}
	}
	if verifyTimeout <= 0 {
		verifyTimeout = 10 * time.Second
	}
	return &PurchaseService{
		nodes:         nodes,
		catalog:       catalog,
		oracle:        oracle,
		verifyTimeout: verifyTimeout,
	}
}

// Purchase requests, verifies and confirms a node in one call. Resubmitting
// the hash of an already active node returns that node. A purchase whose
// payment is not verified stays PendingPayment and may be resubmitted.
func (s *PurchaseService) Purchase(ctx context.Context, userID, tierID, txHash string) (*models.NodeInstance, error) {
	if txHash == "" {
		return nil, ErrMissingTxHash
	}
	tier, err := s.catalog.Tier(tierID)
	if err != nil {
		return nil, err
	}

	inst, err := s.nodes.Unfinished(ctx, userID, tier.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case inst == nil:
		inst, err = s.nodes.RequestPurchase(ctx, userID, tier.ID)
		if err != nil {
			purchasesTotal.WithLabelValues(tier.ID, "busy").Inc()
			return nil, err
		}
	case inst.State == models.NodeActive:
		if inst.TransactionHash != nil && *inst.TransactionHash == txHash {
			return inst, nil
		}
		purchasesTotal.WithLabelValues(tier.ID, "busy").Inc()
		return nil, ErrTierBusy
	}

	ok, err := s.verify(ctx, txHash, inst)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": userID, "tier": tier.ID, "instance_id": inst.ID}).
			Warn("[PURCHASE] payment verification failed")
	}
	if err != nil || !ok {
		purchasesTotal.WithLabelValues(tier.ID, "rejected").Inc()
		return nil, ErrPaymentRejected
	}

	confirmed, err := s.nodes.ConfirmPurchase(ctx, inst.ID, txHash)
	if err != nil {
		if errors.Is(err, ErrAlreadyActivated) {
			err = ErrTierBusy
		}
		purchasesTotal.WithLabelValues(tier.ID, "conflict").Inc()
		return nil, err
	}
	purchasesTotal.WithLabelValues(tier.ID, "confirmed").Inc()
	return confirmed, nil
}

func (s *PurchaseService) verify(ctx context.Context, txHash string, inst *models.NodeInstance) (bool, error) {
	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	return s.oracle.Verify(vctx, txHash, inst.Price)
}
