// ABOUTME: Resolver turning raw "<scheme> <payload>" credentials into Principals
// ABOUTME: Dispatches customer-signed and staff-bearer schemes; rejects all others

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dishpatch/dishpatch/internal/store"
)

// Credential schemes accepted by the resolver.
const (
	SchemeCustomerSigned = "customer-signed"
	SchemeStaffBearer    = "staff-bearer"
)

// Resolution errors
var (
	ErrInvalidScheme     = errors.New("invalid credential scheme")
	ErrInvalidSignature  = errors.New("invalid credential signature")
	ErrExpired           = errors.New("credential expired")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalInactive = errors.New("principal inactive")
)

// StaffDirectory is the single read the staff path performs against
// persistence.
type StaffDirectory interface {
	GetStaffByExternalID(ctx context.Context, externalID string) (*store.Staff, error)
}

// Resolver verifies raw credentials and produces a normalized Principal.
// Customer verification is pure; staff verification performs exactly one
// directory read to confirm current employment.
type Resolver struct {
	botToken string
	tokens   *TokenVerifier
	staff    StaffDirectory

	// now is overridable for expiry tests.
	now func() time.Time
}

// NewResolver creates a Resolver. botToken keys customer-signed HMAC
// verification; tokens verifies staff-bearer tokens; staff is the directory
// consulted on the staff path.
func NewResolver(botToken string, tokens *TokenVerifier, staff StaffDirectory) *Resolver {
	return &Resolver{
		botToken: botToken,
		tokens:   tokens,
		staff:    staff,
		now:      time.Now,
	}
}

// Resolve verifies a raw credential of the form "<scheme> <payload>".
// Failures are one of ErrInvalidScheme, ErrInvalidSignature, ErrExpired,
// ErrPrincipalNotFound or ErrPrincipalInactive (possibly wrapped).
func (r *Resolver) Resolve(ctx context.Context, credential string) (Principal, error) {
	scheme, payload, ok := strings.Cut(strings.TrimSpace(credential), " ")
	if !ok || payload == "" {
		return nil, ErrInvalidScheme
	}

	switch scheme {
	case SchemeCustomerSigned:
		return r.resolveCustomer(payload)
	case SchemeStaffBearer:
		return r.resolveStaff(ctx, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheme, scheme)
	}
}

func (r *Resolver) resolveCustomer(payload string) (Principal, error) {
	customer, err := verifyInitData(payload, r.botToken, r.now())
	if err != nil {
		return nil, err
	}
	return *customer, nil
}

func (r *Resolver) resolveStaff(ctx context.Context, payload string) (Principal, error) {
	claims, err := r.tokens.Verify(payload)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	// A valid signature is not enough: the record must still exist and be
	// active in the staff directory.
	staff, err := r.staff.GetStaffByExternalID(ctx, claims.ExternalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("reading staff directory: %w", err)
	}
	if !staff.IsActive {
		return nil, ErrPrincipalInactive
	}

	return Staff{
		ID:           staff.ID,
		ExternalID:   staff.ExternalID,
		RestaurantID: staff.RestaurantID,
		Role:         Role(staff.Role),
	}, nil
}
