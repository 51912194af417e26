// ABOUTME: Tests for credential resolution across both schemes
// ABOUTME: Covers signatures, the replay window, staff directory checks, unknown schemes

package auth

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dishpatch/dishpatch/internal/store"
)

const testBotToken = "12345:test-bot-token"

// fakeDirectory is an in-memory StaffDirectory.
type fakeDirectory struct {
	staff map[string]*store.Staff
	reads int
}

func (d *fakeDirectory) GetStaffByExternalID(_ context.Context, externalID string) (*store.Staff, error) {
	d.reads++
	s, ok := d.staff[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func newTestResolver(dir *fakeDirectory) (*Resolver, *TokenVerifier) {
	tokens := NewTokenVerifier([]byte("staff-secret"))
	if dir == nil {
		dir = &fakeDirectory{}
	}
	return NewResolver(testBotToken, tokens, dir), tokens
}

// customerPayload builds a signed customer credential with the given age.
func customerPayload(t *testing.T, userID int64, name string, age time.Duration) string {
	t.Helper()
	values := url.Values{}
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":%q}`, userID, name))
	values.Set("auth_date", strconv.FormatInt(time.Now().Add(-age).Unix(), 10))
	values.Set("query_id", "q-1")
	return SignInitData(values, testBotToken)
}

func TestResolve_CustomerSigned(t *testing.T) {
	r, _ := newTestResolver(nil)

	p, err := r.Resolve(context.Background(), SchemeCustomerSigned+" "+customerPayload(t, 123, "Alice", 0))
	require.NoError(t, err)

	customer, ok := p.(Customer)
	require.True(t, ok)
	assert.Equal(t, "123", customer.ExternalID)
	assert.Equal(t, "Alice", customer.DisplayName)
}

func TestResolve_CustomerSigned_Expired(t *testing.T) {
	r, _ := newTestResolver(nil)

	// Structurally valid signature, but older than the replay window
	payload := customerPayload(t, 123, "Alice", CustomerCredentialTTL+time.Minute)
	_, err := r.Resolve(context.Background(), SchemeCustomerSigned+" "+payload)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestResolve_CustomerSigned_TamperedSignature(t *testing.T) {
	r, _ := newTestResolver(nil)

	values := url.Values{}
	values.Set("user", `{"id":123,"first_name":"Alice"}`)
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("hash", "deadbeef")

	_, err := r.Resolve(context.Background(), SchemeCustomerSigned+" "+values.Encode())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestResolve_CustomerSigned_WrongBotToken(t *testing.T) {
	r, _ := newTestResolver(nil)

	values := url.Values{}
	values.Set("user", `{"id":123,"first_name":"Alice"}`)
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	payload := SignInitData(values, "99999:other-bot")

	_, err := r.Resolve(context.Background(), SchemeCustomerSigned+" "+payload)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestResolve_StaffBearer(t *testing.T) {
	dir := &fakeDirectory{staff: map[string]*store.Staff{
		"staff-42": {ID: "u-1", ExternalID: "staff-42", RestaurantID: "rest-9", Role: "waiter", IsActive: true},
	}}
	r, tokens := newTestResolver(dir)

	token, err := tokens.Generate("staff-42", "rest-9", RoleWaiter, time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(context.Background(), SchemeStaffBearer+" "+token)
	require.NoError(t, err)

	staff, ok := p.(Staff)
	require.True(t, ok)
	assert.Equal(t, "u-1", staff.ID)
	assert.Equal(t, "rest-9", staff.RestaurantID)
	assert.Equal(t, RoleWaiter, staff.Role)
	assert.Equal(t, 1, dir.reads, "staff path performs exactly one directory read")
}

func TestResolve_StaffBearer_NotFound(t *testing.T) {
	r, tokens := newTestResolver(&fakeDirectory{})

	token, err := tokens.Generate("ghost", "rest-9", RoleWaiter, time.Hour)
	require.NoError(t, err)

	// Valid signature does not certify employment
	_, err = r.Resolve(context.Background(), SchemeStaffBearer+" "+token)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestResolve_StaffBearer_Inactive(t *testing.T) {
	dir := &fakeDirectory{staff: map[string]*store.Staff{
		"staff-42": {ID: "u-1", ExternalID: "staff-42", RestaurantID: "rest-9", Role: "waiter", IsActive: false},
	}}
	r, tokens := newTestResolver(dir)

	token, err := tokens.Generate("staff-42", "rest-9", RoleWaiter, time.Hour)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), SchemeStaffBearer+" "+token)
	assert.ErrorIs(t, err, ErrPrincipalInactive)
}

func TestResolve_StaffBearer_Expired(t *testing.T) {
	r, tokens := newTestResolver(nil)

	token, err := tokens.Generate("staff-42", "rest-9", RoleWaiter, -time.Minute)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), SchemeStaffBearer+" "+token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestResolve_UnknownScheme(t *testing.T) {
	r, _ := newTestResolver(nil)

	cases := []string{
		"basic dXNlcjpwYXNz",
		"customer-signed",
		"",
		"   ",
	}
	for _, credential := range cases {
		_, err := r.Resolve(context.Background(), credential)
		assert.ErrorIs(t, err, ErrInvalidScheme, "credential %q", credential)
	}
}
