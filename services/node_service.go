package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"node-ledger/models"
)

var unfinishedStates = []models.NodeState{models.NodePendingPayment, models.NodeActive}

// NodeService owns the node lifecycle: PendingPayment -> Active -> Completed.
// Mining payout is granted only by Sweep.
type NodeService struct {
	ledger    *Ledger
	catalog   *Catalog
	referrals *ReferralService
	notifier  Notifier

	pendingTimeout time.Duration

	mu            sync.Mutex
	reportedStale map[string]bool
}

func NewNodeService(ledger *Ledger, catalog *Catalog, referrals *ReferralService, notifier Notifier, pendingTimeout time.Duration) *NodeService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &NodeService{
		ledger:         ledger,
		catalog:        catalog,
		referrals:      referrals,
		notifier:       notifier,
		pendingTimeout: pendingTimeout,
		reportedStale:  make(map[string]bool),
	}
}

// TierStatus is a user's view of one catalog tier.
type TierStatus struct {
	Tier     NodeTier
	Instance *models.NodeInstance // unfinished instance, if any
	Active   bool
	Progress float64
	CanRebuy bool
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Completed    int
	Failed       int
	Paid         decimal.Decimal
	StalePending int
}

// Progress is the share of the mining period elapsed at now, in percent.
// Time is measured from activation, so an unconfirmed purchase does not age.
func Progress(inst *models.NodeInstance, now time.Time) float64 {
	switch inst.State {
	case models.NodeCompleted:
		return 100
	case models.NodeActive:
		if inst.ActivatedAt == nil {
			return 0
		}
		d := inst.Duration()
		if d <= 0 {
			return 100
		}
		elapsed := now.Sub(*inst.ActivatedAt)
		if elapsed <= 0 {
			return 0
		}
		return math.Min(100, float64(elapsed)/float64(d)*100)
	default:
		return 0
	}
}

func canRebuy(db *gorm.DB, userID, tierID string) (bool, error) {
	var count int64
	if err := db.Model(&models.NodeInstance{}).
		Where("user_id = ? AND tier_id = ? AND state IN ?", userID, tierID, unfinishedStates).
		Count(&count).Error; err != nil {
		return false, errors.Wrap(err, "count unfinished instances")
	}
	return count == 0, nil
}

// CanRebuy is true iff the user has no PendingPayment or Active instance of
// the tier. Completed instances never block.
func (s *NodeService) CanRebuy(ctx context.Context, userID, tierID string) (bool, error) {
	if _, err := s.catalog.Tier(tierID); err != nil {
		return false, err
	}
	return canRebuy(s.ledger.DB.WithContext(ctx), userID, tierID)
}

// Unfinished returns the user's PendingPayment or Active instance of the
// tier, or nil.
func (s *NodeService) Unfinished(ctx context.Context, userID, tierID string) (*models.NodeInstance, error) {
	var inst models.NodeInstance
	err := s.ledger.DB.WithContext(ctx).
		Where("user_id = ? AND tier_id = ? AND state IN ?", userID, tierID, unfinishedStates).
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find unfinished instance")
	}
	return &inst, nil
}

// RequestPurchase creates a PendingPayment instance.
func (s *NodeService) RequestPurchase(ctx context.Context, userID, tierID string) (*models.NodeInstance, error) {
	tier, err := s.catalog.Tier(tierID)
	if err != nil {
		return nil, err
	}

	inst := &models.NodeInstance{
		ID:           uuid.NewString(),
		UserID:       userID,
		TierID:       tier.ID,
		State:        models.NodePendingPayment,
		Price:        tier.Price,
		MiningAmount: tier.MiningAmount,
		DurationDays: tier.DurationDays,
		PurchasedAt:  s.ledger.Now(),
	}

	err = s.ledger.InTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.LockUsers(tx, userID); err != nil {
			return err
		}
		ok, err := canRebuy(tx, userID, tier.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTierBusy
		}
		if err := tx.Create(inst).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrTierBusy
			}
			return errors.Wrap(err, "create node instance")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"user_id": userID, "tier": tier.ID, "instance_id": inst.ID}).
		Info("[NODE] purchase requested")
	return inst, nil
}

// ConfirmPurchase activates a PendingPayment instance with txHash.
// Re-confirming with the same hash returns the stored record; a different
// hash for an activated instance is ErrAlreadyActivated. Activation sets the
// owner's purchase flags and validates their pending referral in the same
// transaction.
func (s *NodeService) ConfirmPurchase(ctx context.Context, instanceID, txHash string) (*models.NodeInstance, error) {
	if txHash == "" {
		return nil, ErrMissingTxHash
	}

	var out models.NodeInstance
	activated := false
	err := s.ledger.InTx(ctx, func(tx *gorm.DB) error {
		var inst models.NodeInstance
		if err := tx.Where("id = ?", instanceID).First(&inst).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNodeNotFound
			}
			return errors.Wrap(err, "load node instance")
		}

		referrerID, err := s.referrals.pendingReferrerID(tx, inst.UserID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.LockUsers(tx, inst.UserID, referrerID); err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", instanceID).
			First(&inst).Error; err != nil {
			return errors.Wrap(err, "lock node instance")
		}

		switch inst.State {
		case models.NodeActive, models.NodeCompleted:
			if inst.TransactionHash != nil && *inst.TransactionHash == txHash {
				out = inst
				return nil
			}
			if inst.State == models.NodeCompleted {
				return ErrAlreadyCompleted
			}
			return ErrAlreadyActivated
		}

		now := s.ledger.Now()
		res := tx.Model(&models.NodeInstance{}).
			Where("id = ? AND state = ?", inst.ID, models.NodePendingPayment).
			Updates(map[string]interface{}{
				"state":            models.NodeActive,
				"transaction_hash": txHash,
				"activated_at":     now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "activate node instance")
		}
		if res.RowsAffected != 1 {
			return ErrAlreadyActivated
		}

		flags := map[string]interface{}{"has_purchased_node": true, "updated_at": now}
		if s.catalog.IsTopTier(inst.TierID) {
			flags["has_purchased_node4"] = true
		}
		if err := tx.Model(&models.User{}).Where("id = ?", inst.UserID).Updates(flags).Error; err != nil {
			return errors.Wrap(err, "set purchase flags")
		}

		if _, err := s.referrals.onNodeActivatedTx(tx, inst.UserID); err != nil {
			return err
		}

		hash := txHash
		inst.State = models.NodeActive
		inst.TransactionHash = &hash
		inst.ActivatedAt = &now
		out = inst
		activated = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activated {
		log.WithFields(log.Fields{"user_id": out.UserID, "tier": out.TierID, "instance_id": out.ID}).
			Info("[NODE] node activated, mining started")
	}
	return &out, nil
}

// Status reports every catalog tier for userID.
func (s *NodeService) Status(ctx context.Context, userID string) ([]TierStatus, error) {
	var insts []models.NodeInstance
	if err := s.ledger.DB.WithContext(ctx).
		Where("user_id = ? AND state IN ?", userID, unfinishedStates).
		Find(&insts).Error; err != nil {
		return nil, errors.Wrap(err, "list node instances")
	}
	byTier := make(map[string]*models.NodeInstance, len(insts))
	for i := range insts {
		byTier[insts[i].TierID] = &insts[i]
	}

	now := s.ledger.Now()
	tiers := s.catalog.Tiers()
	out := make([]TierStatus, 0, len(tiers))
	for _, t := range tiers {
		st := TierStatus{Tier: t, CanRebuy: true}
		if inst, ok := byTier[t.ID]; ok {
			st.Instance = inst
			st.Active = inst.State == models.NodeActive
			st.Progress = Progress(inst, now)
			st.CanRebuy = false
		}
		out = append(out, st)
	}
	return out, nil
}

// Sweep completes every Active instance whose mining period has elapsed and
// credits its payout. Each instance is claimed with a compare-and-swap on its
// state inside its own transaction, so concurrent or repeated sweeps pay an
// instance at most once. A failing instance is logged and skipped.
func (s *NodeService) Sweep(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Paid: decimal.Zero}
	now := s.ledger.Now()

	var active []models.NodeInstance
	if err := s.ledger.DB.WithContext(ctx).
		Where("state = ?", models.NodeActive).
		Find(&active).Error; err != nil {
		return res, errors.Wrap(err, "list active instances")
	}

	for i := range active {
		inst := &active[i]
		if Progress(inst, now) < 100 {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		paid, err := s.complete(ctx, inst.ID, now)
		if err != nil {
			res.Failed++
			sweepFailuresTotal.Inc()
			log.WithError(err).WithField("instance_id", inst.ID).Warn("[SWEEP] failed to complete node")
			continue
		}
		if paid.IsPositive() {
			res.Completed++
			res.Paid = res.Paid.Add(paid)
			sweepCompletedTotal.WithLabelValues(inst.TierID).Inc()
		}
	}

	stale, err := s.reportStalePending(ctx, now)
	if err != nil {
		log.WithError(err).Warn("[SWEEP] failed to scan pending purchases")
	}
	res.StalePending = stale

	if res.Completed > 0 || res.Failed > 0 {
		log.WithFields(log.Fields{
			"completed": res.Completed,
			"failed":    res.Failed,
			"paid":      res.Paid.String(),
		}).Info("[SWEEP] sweep finished")
	}
	return res, nil
}

// complete claims one instance and pays it out. It returns the amount paid,
// zero when another sweep already claimed it.
func (s *NodeService) complete(ctx context.Context, instanceID string, now time.Time) (decimal.Decimal, error) {
	paid := decimal.Zero
	err := s.ledger.InTx(ctx, func(tx *gorm.DB) error {
		var inst models.NodeInstance
		if err := tx.Where("id = ?", instanceID).First(&inst).Error; err != nil {
			return errors.Wrap(err, "load node instance")
		}
		if inst.State != models.NodeActive {
			return nil
		}
		if _, err := s.ledger.LockUsers(tx, inst.UserID); err != nil {
			return err
		}

		claim := tx.Model(&models.NodeInstance{}).
			Where("id = ? AND state = ?", instanceID, models.NodeActive).
			Updates(map[string]interface{}{
				"state":        models.NodeCompleted,
				"completed_at": now,
			})
		if claim.Error != nil {
			return errors.Wrap(claim.Error, "claim node instance")
		}
		if claim.RowsAffected != 1 {
			return nil
		}

		if _, err := s.ledger.Credit(tx, inst.UserID, models.BalanceMine, inst.MiningAmount); err != nil {
			return err
		}
		paid = inst.MiningAmount

		log.WithFields(log.Fields{
			"user_id":     inst.UserID,
			"tier":        inst.TierID,
			"instance_id": inst.ID,
			"payout":      inst.MiningAmount.String(),
		}).Info("[SWEEP] node completed, payout credited")
		return nil
	})
	return paid, err
}

// reportStalePending tells the operator about purchases left unconfirmed past
// the timeout. They are never expired here: a payment may still be in flight.
func (s *NodeService) reportStalePending(ctx context.Context, now time.Time) (int, error) {
	if s.pendingTimeout <= 0 {
		return 0, nil
	}

	var pending []models.NodeInstance
	if err := s.ledger.DB.WithContext(ctx).
		Where("state = ?", models.NodePendingPayment).
		Find(&pending).Error; err != nil {
		return 0, errors.Wrap(err, "list pending instances")
	}

	stale := 0
	for _, inst := range pending {
		if now.Sub(inst.PurchasedAt) < s.pendingTimeout {
			continue
		}
		stale++

		s.mu.Lock()
		seen := s.reportedStale[inst.ID]
		s.reportedStale[inst.ID] = true
		s.mu.Unlock()
		if seen {
			continue
		}

		log.WithFields(log.Fields{"user_id": inst.UserID, "tier": inst.TierID, "instance_id": inst.ID}).
			Warn("[SWEEP] purchase pending payment past timeout, needs operator")
		s.notifier.Notify(ctx, fmt.Sprintf("Purchase %s (%s) by user %s pending payment since %s",
			inst.ID, inst.TierID, inst.UserID, inst.PurchasedAt.Format(time.RFC3339)))
	}
	return stale, nil
}
