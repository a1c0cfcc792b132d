package services

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"node-ledger/models"
)

// SignupBonus is credited to mine_balance when an account is created.
var SignupBonus = decimal.NewFromInt(25)

const tokenTTL = 7 * 24 * time.Hour

type AuthService struct {
	ledger     *Ledger
	referrals  *ReferralService
	secret     []byte
	bcryptCost int
}

func NewAuthService(ledger *Ledger, referrals *ReferralService, secret string) *AuthService {
	return &AuthService{
		ledger:     ledger,
		referrals:  referrals,
		secret:     []byte(secret),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func (s *AuthService) WithBcryptCost(cost int) *AuthService {
	s.bcryptCost = cost
	return s
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func newReferCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Signup creates an account with the sign-up bonus and, when referCode names
// another user, a pending referral. A bad referral code is ignored.
func (s *AuthService) Signup(ctx context.Context, username, password, referCode string) (*models.User, string, error) {
	username = strings.TrimSpace(username)
	if l := len(username); l < 3 || l > 32 {
		return nil, "", ErrInvalidInput.WithMessage("Username must be 3 to 32 characters")
	}
	if len(password) < 6 {
		return nil, "", ErrInvalidInput.WithMessage("Password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", errors.Wrap(err, "hash password")
	}

	user := &models.User{
		ID:              uuid.NewString(),
		Username:        username,
		PasswordHash:    string(hash),
		MineBalance:     SignupBonus,
		ReferralBalance: decimal.Zero,
	}

	err = s.ledger.InTx(ctx, func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			return errors.Wrap(err, "check username")
		}
		if taken > 0 {
			return ErrUsernameTaken
		}

		code, err := uniqueReferCode(tx)
		if err != nil {
			return err
		}
		user.ReferCode = code

		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return errors.Wrap(err, "create user")
		}
		_, err = s.referrals.RegisterReferral(tx, user, strings.TrimSpace(referCode))
		return err
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	log.WithFields(log.Fields{"user_id": user.ID, "username": user.Username}).Info("[AUTH] user signed up")
	return user, token, nil
}

func uniqueReferCode(tx *gorm.DB) (string, error) {
	for i := 0; i < 5; i++ {
		code := newReferCode()
		var n int64
		if err := tx.Model(&models.User{}).Where("refer_code = ?", code).Count(&n).Error; err != nil {
			return "", errors.Wrap(err, "check refer code")
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique refer code")
}

// Login checks credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	var user models.User
	err := s.ledger.DB.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "find user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.ledger.GetUser(ctx, userID)
}

// IssueToken signs an HS256 token for userID valid for seven days.
func (s *AuthService) IssueToken(userID string) (string, error) {
	now := s.ledger.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ParseToken returns the user id carried by a valid token.
func (s *AuthService) ParseToken(raw string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.ledger.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
