package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keygate/backend/internal/domain"
)

// AccountRepository handles database operations for accounts.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, password, subscription_status,
	billing_customer_ref, billing_subscription_ref, current_period_end,
	created_at, updated_at`

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, password, subscription_status,
			billing_customer_ref, billing_subscription_ref, current_period_end,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		a.ID, a.Email, a.Password, a.SubscriptionStatus,
		a.BillingCustomerRef, a.BillingSubRef, a.CurrentPeriodEnd,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", a.Email, ErrUniqueViolation)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, query, args...)

	var a domain.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.Password, &a.SubscriptionStatus,
		&a.BillingCustomerRef, &a.BillingSubRef, &a.CurrentPeriodEnd,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &a, nil
}

// FindByID returns an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByEmail returns an account by email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// FindByBillingCustomer returns the account referencing the given billing
// customer.
func (r *AccountRepository) FindByBillingCustomer(ctx context.Context, customerRef string) (*domain.Account, error) {
	return r.findOne(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE billing_customer_ref = $1`,
		customerRef)
}

// UpdateSubscription mutates the billing fields of an account.
func (r *AccountRepository) UpdateSubscription(ctx context.Context, accountID, customerRef, subRef, status string, periodEnd *time.Time) error {
	query := `
		UPDATE accounts
		SET billing_customer_ref = $1, billing_subscription_ref = $2,
			subscription_status = $3, current_period_end = $4, updated_at = NOW()
		WHERE id = $5
	`
	_, err := r.db.Exec(ctx, query, customerRef, subRef, status, periodEnd, accountID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// AppendHistory writes a subscription-history record.
func (r *AccountRepository) AppendHistory(ctx context.Context, h *domain.SubscriptionHistory) error {
	query := `
		INSERT INTO subscription_history (id, account_id, subscription_ref,
			event_type, status, period_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		h.ID, h.AccountID, h.SubRef, h.EventType, h.Status, h.PeriodEnd, h.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append subscription history: %w", err)
	}
	return nil
}
