package bank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-parser/internal/domain/common"
)

func TestBankFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"statements@unionbankofindia.bank", "UNION"},
		{"alerts@kotak.com", "KOTAK"},
		{"donotreply@sbi.co.in", "SBI"},
		{"estatement@hdfcbank.net", "HDFC"},
		{"noreply@icicibank.com", "ICICI"},
		{"user@gmail.com", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, BankFromEmail(tc.email), tc.email)
	}
}

func TestRegistryResolveEmailHintWinsOverContent(t *testing.T) {
	r := NewRegistry()

	// The header names another bank; the sender address is authoritative.
	e, err := r.Resolve("alerts@kotak.com", "State Bank of India statement")
	require.NoError(t, err)
	assert.Equal(t, "KOTAK", e.Name())
}

func TestRegistryResolveHintWithoutExtractorFallsThrough(t *testing.T) {
	r := NewRegistry()

	// ICICI is a known sender pattern but has no extractor yet; content
	// detection picks up the slack.
	e, err := r.Resolve("noreply@icicibank.com", "Kotak Mahindra Bank statement")
	require.NoError(t, err)
	assert.Equal(t, "KOTAK", e.Name())
}

func TestRegistryResolveContentDetectionInRegistrationOrder(t *testing.T) {
	r := NewRegistry()

	// Both UNION and HDFC markers appear; registration order decides.
	e, err := r.Resolve("user@gmail.com", "UBIN0531111 sponsored by HDFC")
	require.NoError(t, err)
	assert.Equal(t, "UNION", e.Name())
}

func TestRegistryResolveUnsupportedBank(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("user@gmail.com", "Some Credit Union monthly summary")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedBank)
}

func TestParseAccountHeaderSharedPatterns(t *testing.T) {
	details := parseAccountHeader("Account No: 123456789012\nIFSC Code: HDFC0001234\nSavings Account")
	assert.Equal(t, "123456789012", details.Number)
	require.NotNil(t, details.IFSCCode)
	assert.Equal(t, "HDFC0001234", *details.IFSCCode)
	assert.Equal(t, "SAVINGS", details.Type)
}
