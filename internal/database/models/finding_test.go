package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"critical":      SeverityCritical,
		"CRITICAL":      SeverityCritical,
		"High":          SeverityHigh,
		"medium":        SeverityMedium,
		"moderate":      SeverityMedium,
		"low":           SeverityLow,
		"informational": SeverityInfo,
		"info":          SeverityInfo,
		"unknown":       SeverityInfo,
	}
	for input, want := range cases {
		got, err := ParseSeverity(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityInfo.Rank())
}

func TestExtendedDetail_RoundTrip(t *testing.T) {
	findingID := uuid.New()

	detail, err := NewExtendedDetail(findingID, DetailKindContract, ContractDetail{
		Contract:   "Vault",
		Check:      "reentrancy-eth",
		LineNumber: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, findingID, detail.FindingID)

	decoded, err := detail.DecodePayload()
	require.NoError(t, err)
	contract, ok := decoded.(*ContractDetail)
	require.True(t, ok)
	assert.Equal(t, 42, contract.LineNumber)
	assert.Equal(t, "Vault", contract.Contract)
}

func TestExtendedDetail_UnknownKind(t *testing.T) {
	detail := &ExtendedDetail{Kind: "mystery", Payload: "{}"}
	_, err := detail.DecodePayload()
	assert.Error(t, err)
}
