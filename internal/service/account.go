package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/repository"
)

// AccountService handles signup, login, and bearer-token verification. It
// is the "authenticate(user) -> identity" capability the license core
// consumes; everything else treats identity as an opaque account ID.
type AccountService struct {
	jwtSecret string
	accounts  repository.AccountStore
	registry  *LicenseRegistry
	validate  *validator.Validate
}

// NewAccountService creates a new AccountService.
func NewAccountService(jwtSecret string, accounts repository.AccountStore, registry *LicenseRegistry) *AccountService {
	return &AccountService{
		jwtSecret: jwtSecret,
		accounts:  accounts,
		registry:  registry,
		validate:  validator.New(),
	}
}

// Signup registers an account and starts its trial license.
func (s *AccountService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("failed to hash password", err)
	}

	now := time.Now()
	account := &domain.Account{
		ID:                 domain.NewAccountID(),
		Email:              email,
		Password:           string(hashed),
		SubscriptionStatus: domain.SubscriptionFree,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, domain.ErrConflict("email already registered")
		}
		return nil, domain.ErrInternal("failed to create account", err)
	}

	if _, err := s.registry.Issue(ctx, account.ID, domain.LicenseTrial, "", ""); err != nil {
		// The account exists; a missing trial is recoverable by purchase.
		log.Printf("failed to issue trial license for account %s: %v", account.ID, err)
	}

	log.Printf("account %s registered (%s)", account.ID, account.Email)
	return s.loginResponse(account)
}

// Login validates credentials and returns a bearer token.
func (s *AccountService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, domain.ErrInternal("failed to find account", err)
	}
	if account == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password)); err != nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	return s.loginResponse(account)
}

// GetAccount returns the account for an authenticated identity.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find account", err)
	}
	if account == nil {
		return nil, domain.ErrNotFound("account not found")
	}
	return account, nil
}

func (s *AccountService) loginResponse(account *domain.Account) (*domain.LoginResponse, error) {
	claims := jwt.MapClaims{
		"sub":   account.ID,
		"email": account.Email,
		"exp":   time.Now().Add(7 * 24 * time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, domain.ErrInternal("failed to sign token", err)
	}

	return &domain.LoginResponse{
		Token: signed,
		Account: domain.AccountBrief{
			ID:    account.ID,
			Email: account.Email,
		},
	}, nil
}

// VerifyToken validates a bearer token and returns the identity claims.
func (s *AccountService) VerifyToken(tokenStr string) (*domain.JWTClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	return &domain.JWTClaims{
		Sub:   getClaimString(claims, "sub"),
		Email: getClaimString(claims, "email"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// formatValidationErrors flattens validator errors into one readable line.
func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
