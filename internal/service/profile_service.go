package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/afrix/afxledger/internal/domain"
	"github.com/afrix/afxledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var referralCodeRe = regexp.MustCompile(`^[A-Z0-9]{6,16}$`)

// OnboardRequest is sent by the signup collaborator for a new user.
type OnboardRequest struct {
	UserID       uuid.UUID `json:"user_id"       binding:"required"`
	ReferralCode string    `json:"referral_code"` // empty = generated
	ReferrerCode string    `json:"referrer_code"` // code the user signed up with, optional
}

// ProfileService creates and reads user profiles and the referral edge made
// at signup.
type ProfileService struct {
	db        *sqlx.DB
	profiles  *repository.ProfileRepository
	referrals *repository.ReferralRepository
	log       *zap.Logger
	now       Clock
}

// NewProfileService creates a ProfileService.
func NewProfileService(
	db *sqlx.DB,
	profiles *repository.ProfileRepository,
	referrals *repository.ReferralRepository,
	log *zap.Logger,
) *ProfileService {
	return &ProfileService{
		db:        db,
		profiles:  profiles,
		referrals: referrals,
		log:       log,
		now:       systemClock,
	}
}

// SetClock replaces the time source.
func (s *ProfileService) SetClock(c Clock) { s.now = c }

// Onboard creates the user's profile. When ReferrerCode names an existing
// user, that user becomes the referrer.
func (s *ProfileService) Onboard(ctx context.Context, req OnboardRequest) (*domain.UserProfile, error) {
	if req.UserID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "required", "user_id is required")
	}
	code := strings.ToUpper(strings.TrimSpace(req.ReferralCode))
	if code == "" {
		code = newReferralCode(req.UserID)
	}
	if !referralCodeRe.MatchString(code) {
		return nil, domain.NewValidationError("referral_code", "alphanum",
			"referral code must be 6-16 letters or digits")
	}
	referrerCode := strings.ToUpper(strings.TrimSpace(req.ReferrerCode))

	now := s.now()
	p := &domain.UserProfile{
		UserID:       req.UserID,
		Rating:       decimal.Zero,
		ReferralCode: code,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var referrer *domain.UserProfile
		if referrerCode != "" {
			var err error
			if referrer, err = s.profiles.GetByReferralCode(ctx, tx, referrerCode); err != nil {
				return err
			}
			if referrer.UserID == p.UserID {
				return domain.NewValidationError("referrer_code", "self", "cannot refer yourself")
			}
			p.ReferredBy = &referrer.UserID
		}

		if err := s.profiles.Create(ctx, tx, p); err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		return s.referrals.Insert(ctx, tx, &domain.ReferralEdge{
			ReferrerID:             referrer.UserID,
			ReferredID:             p.UserID,
			ReferralCode:           referrer.ReferralCode,
			AccruedTradeCommission: decimal.Zero,
			AccruedClaimCommission: decimal.Zero,
			CreatedAt:              now,
			UpdatedAt:              now,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrProfileExists) || errors.Is(err, domain.ErrReferralCodeTaken) ||
			errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("profile_service.Onboard: %w", err)
	}

	s.log.Info("profile onboarded",
		zap.String("user_id", p.UserID.String()),
		zap.Bool("referred", p.ReferredBy != nil))
	return p, nil
}

// GetProfile returns a user's profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	return s.profiles.GetByID(ctx, nil, userID)
}

// List returns a page of profiles, newest first.
func (s *ProfileService) List(ctx context.Context, page, limit int) ([]*domain.UserProfile, error) {
	l, off := pageBounds(page, limit)
	return s.profiles.List(ctx, l, off)
}

// newReferralCode derives an 8-character code from the user id.
func newReferralCode(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
