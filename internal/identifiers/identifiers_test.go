package identifiers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

func TestNormalize_PMCID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"PMC4219345", "PMC4219345", false},
		{"pmc4219345", "PMC4219345", false},
		{"4219345", "PMC4219345", false},
		{"  PMC123  ", "PMC123", false},
		{"PMC", "", true},
		{"PMC12a", "", true},
		{"", "", true},
		{"PMID:123", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(domain.KindPMCID, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidIdentifier))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_PMID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"25370143", "25370143", false},
		{" 1 ", "1", false},
		{"PMID:25370143", "25370143", false},
		{"pmid: 25370143", "25370143", false},
		{"12345678901", "", true},
		{"abc", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(domain.KindPMID, tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_DOI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"10.1371/journal.pone.0111148", "10.1371/journal.pone.0111148", false},
		{"doi:10.1371/journal.pone.0111148", "10.1371/journal.pone.0111148", false},
		{"DOI:10.1371/ABC", "10.1371/ABC", false},
		{"https://doi.org/10.1000/XyZ", "10.1000/XyZ", false},
		{"http://dx.doi.org/10.1000/xyz", "10.1000/xyz", false},
		{"  10.1000/182  ", "10.1000/182", false},
		{"11.1000/182", "", true},
		{"10.abc/182", "", true},
		{"10.1000/", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(domain.KindDOI, tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_UnknownKind(t *testing.T) {
	_, err := Normalize(domain.IdentifierKind("isbn"), "123")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestNormalize_Idempotent(t *testing.T) {
	for kind, raw := range map[domain.IdentifierKind]string{
		domain.KindPMCID: "pmc 1",
		domain.KindPMID:  "pmid:42",
		domain.KindDOI:   "doi:10.1/x",
	} {
		first, err := Normalize(kind, raw)
		if err != nil {
			continue
		}
		second, err := Normalize(kind, first)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}
