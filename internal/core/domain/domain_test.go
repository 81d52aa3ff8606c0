package domain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", false},
		{"too short", "0x123", false},
		{"no marker", "f39fd6e51aad88f6f4ce6ab8827279cfffb922660000", false},
		{"bad marker", "1xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", false},
		{"non hex", "0xg39fd6e51aad88f6f4ce6ab8827279cfffb92266", false},
		{"lower", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"mixed", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", true},
		{"upper marker", "0Xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"too long", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb922661", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.in))
		})
	}
}

func TestParseAddress_Normalizes(t *testing.T) {
	a, err := ParseAddress(" 0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266 ")
	require.NoError(t, err)
	assert.Equal(t, Address("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"), a)

	_, err = ParseAddress("0x123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddress_Checksum(t *testing.T) {
	// EIP-55 reference vector.
	a := MustParseAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", a.Checksum())
	assert.True(t, a.Equal(Address("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")))
}

func TestValidatePositive(t *testing.T) {
	assert.NoError(t, ValidatePositive("price", big.NewInt(1)))
	assert.ErrorIs(t, ValidatePositive("price", big.NewInt(0)), ErrInvalidInput)
	assert.ErrorIs(t, ValidatePositive("price", big.NewInt(-5)), ErrInvalidInput)
	assert.ErrorIs(t, ValidatePositive("price", nil), ErrInvalidInput)
}

func TestTotalCost_Exact(t *testing.T) {
	assert.Equal(t, big.NewInt(500_000), TotalCost(big.NewInt(250_000), 2))

	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	want, _ := new(big.Int).SetString("370370367037037036703703703670", 10)
	assert.Equal(t, want, TotalCost(huge, 3))
}

func TestFormatAndParseAmount(t *testing.T) {
	v, err := ParseAmount("12.5")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("12500000000000000000", 10)
	assert.Equal(t, want, v)
	assert.Equal(t, "12.50", FormatAmount(v, 2))
	assert.Equal(t, "12", FormatAmount(v, 0))

	_, err = ParseAmount("1.0000000000000000001")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseAmount("-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestError_KindMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", StepError(KindExecutionReverted, 2, "addTicketTier", errors.New("boom")))

	assert.ErrorIs(t, err, ErrExecutionReverted)
	assert.NotErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, KindExecutionReverted, KindOf(err))
	assert.Contains(t, err.Error(), "step 2")
	assert.True(t, KindOf(err).Terminal())
	assert.False(t, KindSubmissionTimeout.Terminal())
	assert.True(t, KindSubmissionTimeout.Retryable())
	assert.True(t, KindNotFound.Recoverable())
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestRetryable_SubmittedWriteIsNot(t *testing.T) {
	before := StepError(KindSubmissionTimeout, 0, "approve", errors.New("connection refused"))
	assert.True(t, Retryable(before))
	assert.Equal(t, ResolveRetry, ResolutionOf(before))
	assert.Contains(t, Message(before), "safe to retry")

	after := StepError(KindSubmissionTimeout, 1, "purchaseTickets", errors.New("deadline exceeded"))
	after.TxHash = "0xfeed"
	wrapped := fmt.Errorf("purchase: %w", after)

	assert.False(t, Retryable(wrapped))
	assert.Equal(t, "0xfeed", SubmittedTx(wrapped))
	assert.Equal(t, ResolveCheckTx, ResolutionOf(wrapped))
	assert.Contains(t, Message(wrapped), "0xfeed")
	assert.NotContains(t, Message(wrapped), "safe to retry")
}

func TestResolutionOf(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want Resolution
	}{
		{KindExecutionReverted, ResolveRestart},
		{KindUnresolvedBinding, ResolveRestart},
		{KindRPCUnavailable, ResolveRetry},
		{KindUserRejected, ResolveRetry},
		{KindInvalidInput, ResolveFixInput},
		{KindInsufficientFunds, ResolveFixInput},
		{KindQuantityOutOfRange, ResolveFixInput},
		{KindNotFound, ResolveFixInput},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, ResolutionOf(NewError(tt.kind, "op", nil)))
		})
	}

	reverted := StepError(KindExecutionReverted, 0, "createEvent", nil)
	reverted.TxHash = "0xdead"
	assert.Equal(t, ResolveRestart, ResolutionOf(reverted))
	assert.Equal(t, ResolveNone, ResolutionOf(errors.New("plain")))
	assert.Equal(t, ResolveNone, ResolutionOf(nil))
}

func TestRole_Permissions(t *testing.T) {
	assert.True(t, RoleAdmin.CanDeploy())
	assert.True(t, RoleOrganizer.CanDeploy())
	assert.False(t, RoleStaff.CanDeploy())

	assert.True(t, RoleAdmin.CanCheckIn())
	assert.True(t, RoleStaff.CanCheckIn())
	assert.False(t, RoleOrganizer.CanCheckIn())
	assert.False(t, RoleBuyer.CanCheckIn())
	assert.False(t, RoleUnauthenticated.CanCheckIn())
}

func TestTierRecord_RemainingNotClamped(t *testing.T) {
	tier := TierRecord{Available: big.NewInt(5), Sold: big.NewInt(7)}
	assert.Equal(t, big.NewInt(-2), tier.Remaining())
}
