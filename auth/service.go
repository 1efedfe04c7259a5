package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/db"
	"github.com/kasuganosora/friendhub/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned for both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("email or password was incorrect")
)

// SignupInput carries a validated signup request.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Age       int
}

// Service implements signup and signin.
type Service struct {
	db     *gorm.DB
	tokens *TokenIssuer
	params HashParams
	audit  audit.Recorder
	logger *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewService wires the auth workflow. A nil recorder disables auditing.
func NewService(gdb *gorm.DB, tokens *TokenIssuer, rec audit.Recorder, logger *zap.Logger) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{
		db:     gdb,
		tokens: tokens,
		params: DefaultHashParams,
		audit:  rec,
		logger: logger,
	}
}

// SetHashParams changes the argon2id cost of new hashes. Call it before the
// service handles requests; stored hashes keep their own parameters.
func (s *Service) SetHashParams(p HashParams) {
	s.params = p
}

// Signup creates the account and returns an access token for it.
func (s *Service) Signup(ctx context.Context, in SignupInput) (string, error) {
	hash, err := HashPassword(in.Password, s.params)
	if err != nil {
		return "", err
	}
	acc := &model.Account{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Age:          in.Age,
	}
	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return "", ErrDuplicateEmail
		}
		return "", fmt.Errorf("auth: create account: %w", err)
	}

	s.audit.Log(ctx, audit.Entry{AccountID: &acc.ID, Action: audit.ActionSignup})
	return s.tokens.Issue(acc.ID, acc.Email)
}

// Signin checks the credentials and returns an access token.
func (s *Service) Signin(ctx context.Context, email, password string) (string, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// A miss costs one hash, same as a wrong password.
		_, _ = VerifyPassword(password, s.decoyHash())
		s.audit.Log(ctx, audit.Entry{Action: audit.ActionSigninFailed})
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("auth: find account: %w", err)
	}

	ok, err := VerifyPassword(password, acc.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("auth: verify password for account %d: %w", acc.ID, err)
	}
	if !ok {
		s.audit.Log(ctx, audit.Entry{AccountID: &acc.ID, Action: audit.ActionSigninFailed})
		return "", ErrInvalidCredentials
	}

	s.audit.Log(ctx, audit.Entry{AccountID: &acc.ID, Action: audit.ActionSignin})
	return s.tokens.Issue(acc.ID, acc.Email)
}

func (s *Service) decoyHash() string {
	s.dummyOnce.Do(func() {
		h, err := HashPassword("decoy-password", s.params)
		if err != nil {
			s.logger.Warn("decoy hash unavailable", zap.Error(err))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
