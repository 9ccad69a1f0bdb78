package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"neuralsalvage/pkg/sendemail"
)

const (
	codeLength = 6
	codeTTL    = 10 * time.Minute
	maxPerHour = 3
	rateWindow = time.Hour
)

var (
	ErrTooManyRequests = errors.New("too many OTP requests, please try again later")
	ErrOTPExpired      = errors.New("OTP has expired")
	ErrInvalidCode     = errors.New("invalid OTP code")
)

// UserVerifier records a successful email verification on the account.
type UserVerifier interface {
	UpdateVerifiedAtByEmail(ctx context.Context, email string, ts time.Time) error
}

type OTPService interface {
	GenerateAndSendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
}

type otpService struct {
	repo  OTPRepository
	users UserVerifier
	es    sendemail.EmailService
	log   *zap.Logger
	now   func() time.Time
}

func NewOTPService(repo OTPRepository, users UserVerifier, es sendemail.EmailService, log *zap.Logger) OTPService {
	return &otpService{repo: repo, users: users, es: es, log: log, now: time.Now}
}

func (s *otpService) GenerateAndSendOTP(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	count, err := s.repo.CountOTPsSince(ctx, email, s.now().Add(-rateWindow))
	if err != nil {
		return fmt.Errorf("check OTP count: %w", err)
	}
	if count >= maxPerHour {
		return ErrTooManyRequests
	}

	code, err := generateCode(codeLength)
	if err != nil {
		return fmt.Errorf("generate OTP: %w", err)
	}

	if _, err := s.repo.CreateOTP(ctx, email, code, s.now().Add(codeTTL)); err != nil {
		return fmt.Errorf("create OTP: %w", err)
	}

	if err := sendemail.Send(s.es, email, sendemail.OTPMessage(code, int(codeTTL/time.Minute))); err != nil {
		return fmt.Errorf("send OTP email: %w", err)
	}

	if err := s.repo.DeleteExpiredOTPs(ctx); err != nil {
		s.log.Warn("prune expired otps", zap.Error(err))
	}
	return nil
}

func (s *otpService) VerifyOTP(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	otp, err := s.repo.GetOTPByEmail(ctx, email)
	if err != nil {
		return err
	}
	if s.now().After(otp.ExpiresAt) {
		return ErrOTPExpired
	}
	if otp.Code != strings.TrimSpace(code) {
		return ErrInvalidCode
	}

	if err := s.repo.MarkOTPAsVerified(ctx, otp.ID); err != nil {
		return fmt.Errorf("mark OTP verified: %w", err)
	}
	if err := s.users.UpdateVerifiedAtByEmail(ctx, email, s.now()); err != nil {
		return fmt.Errorf("update user verification: %w", err)
	}
	return nil
}

func generateCode(length int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for range length {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
