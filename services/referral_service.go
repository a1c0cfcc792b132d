package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"node-ledger/models"
)

// DefaultReferralBonus is credited to a referrer once per valid referral.
var DefaultReferralBonus = decimal.NewFromInt(50)

type ReferralService struct {
	ledger *Ledger
	bonus  decimal.Decimal
}

func NewReferralService(ledger *Ledger, bonus decimal.Decimal) *ReferralService {
	return &ReferralService{ledger: ledger, bonus: bonus}
}

// ReferralEntry is one referred user as shown to the referrer.
type ReferralEntry struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
	IsValid  bool      `json:"is_valid"`
}

type ReferralSummary struct {
	ReferCode        string          `json:"refer_code"`
	ValidReferrals   []ReferralEntry `json:"valid_referrals"`
	PendingReferrals []ReferralEntry `json:"invalid_referrals"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
}

// RegisterReferral links newUser to the owner of code inside the sign-up
// transaction. An empty or unknown code, or the user's own code, creates
// nothing and is not an error: a bad code never blocks account creation.
func (s *ReferralService) RegisterReferral(tx *gorm.DB, newUser *models.User, code string) (*models.Referral, error) {
	if code == "" {
		return nil, nil
	}

	var referrer models.User
	if err := tx.Where("refer_code = ?", code).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithField("code", code).Info("[REFERRAL] unknown referral code ignored at sign-up")
			return nil, nil
		}
		return nil, errors.Wrap(err, "resolve referral code")
	}
	if referrer.ID == newUser.ID {
		return nil, nil
	}

	ref := &models.Referral{
		ID:          uuid.NewString(),
		ReferrerID:  referrer.ID,
		ReferredID:  newUser.ID,
		State:       models.ReferralPending,
		BonusAmount: decimal.Zero,
		JoinedAt:    s.ledger.Now(),
	}
	if err := tx.Create(ref).Error; err != nil {
		return nil, errors.Wrap(err, "create referral")
	}
	if err := tx.Model(&models.User{}).
		Where("id = ?", newUser.ID).
		Update("referred_by", referrer.ID).Error; err != nil {
		return nil, errors.Wrap(err, "set referred_by")
	}
	newUser.ReferredBy = &referrer.ID
	return ref, nil
}

// pendingReferrerID returns the referrer of a still-pending referral for
// referredID, or "" when there is none.
func (s *ReferralService) pendingReferrerID(tx *gorm.DB, referredID string) (string, error) {
	var ref models.Referral
	err := tx.Where("referred_id = ? AND state = ?", referredID, models.ReferralPending).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "find pending referral")
	}
	return ref.ReferrerID, nil
}

// OnNodeActivated validates the pending referral of userID, if any, and
// credits the referrer. It locks both users itself.
func (s *ReferralService) OnNodeActivated(ctx context.Context, userID string) (*models.Referral, error) {
	var out *models.Referral
	err := s.ledger.InTx(ctx, func(tx *gorm.DB) error {
		referrerID, err := s.pendingReferrerID(tx, userID)
		if err != nil || referrerID == "" {
			return err
		}
		if _, err := s.ledger.LockUsers(tx, userID, referrerID); err != nil {
			return err
		}
		out, err = s.onNodeActivatedTx(tx, userID)
		return err
	})
	return out, err
}

// onNodeActivatedTx assumes the caller holds the locks on the referred user
// and the referrer. The pending->valid update is a compare-and-swap, so a
// referral is credited at most once however many nodes the user activates.
func (s *ReferralService) onNodeActivatedTx(tx *gorm.DB, userID string) (*models.Referral, error) {
	var ref models.Referral
	err := tx.Where("referred_id = ? AND state = ?", userID, models.ReferralPending).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find pending referral")
	}

	now := s.ledger.Now()
	res := tx.Model(&models.Referral{}).
		Where("id = ? AND state = ?", ref.ID, models.ReferralPending).
		Updates(map[string]interface{}{
			"state":        models.ReferralValid,
			"bonus_amount": s.bonus,
			"validated_at": now,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "validate referral")
	}
	if res.RowsAffected != 1 {
		return nil, nil
	}

	if _, err := s.ledger.Credit(tx, ref.ReferrerID, models.BalanceReferral, s.bonus); err != nil {
		return nil, err
	}

	ref.State = models.ReferralValid
	ref.BonusAmount = s.bonus
	ref.ValidatedAt = &now
	referralsValidatedTotal.Inc()
	log.WithFields(log.Fields{
		"referrer_id": ref.ReferrerID,
		"referred_id": ref.ReferredID,
		"bonus":       s.bonus.String(),
	}).Info("[REFERRAL] referral validated")
	return &ref, nil
}

// Summary partitions the referrals made by userID by state.
func (s *ReferralService) Summary(ctx context.Context, userID string) (*ReferralSummary, error) {
	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	db := s.ledger.DB.WithContext(ctx)
	var refs []models.Referral
	if err := db.Where("referrer_id = ?", userID).Order("joined_at ASC").Find(&refs).Error; err != nil {
		return nil, errors.Wrap(err, "list referrals")
	}

	names := make(map[string]string, len(refs))
	if len(refs) > 0 {
		ids := make([]string, 0, len(refs))
		for _, r := range refs {
			ids = append(ids, r.ReferredID)
		}
		var referred []models.User
		if err := db.Select("id", "username").Where("id IN ?", ids).Find(&referred).Error; err != nil {
			return nil, errors.Wrap(err, "load referred users")
		}
		for _, u := range referred {
			names[u.ID] = u.Username
		}
	}

	summary := &ReferralSummary{
		ReferCode:        user.ReferCode,
		ValidReferrals:   []ReferralEntry{},
		PendingReferrals: []ReferralEntry{},
		TotalEarned:      decimal.Zero,
	}
	for _, r := range refs {
		entry := ReferralEntry{
			Username: names[r.ReferredID],
			JoinedAt: r.JoinedAt,
			IsValid:  r.State == models.ReferralValid,
		}
		if entry.IsValid {
			summary.ValidReferrals = append(summary.ValidReferrals, entry)
			summary.TotalEarned = summary.TotalEarned.Add(r.BonusAmount)
		} else {
			summary.PendingReferrals = append(summary.PendingReferrals, entry)
		}
	}
	return summary, nil
}
