package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Run("should parse grouped pt-BR amounts", func(t *testing.T) {
		value := ParseAmount("1.234,56")
		require.NotNil(t, value)
		assert.InDelta(t, 1234.56, *value, 0.001)
	})

	t.Run("should strip the currency symbol", func(t *testing.T) {
		value := ParseAmount("R$ 1.234,56")
		require.NotNil(t, value)
		assert.InDelta(t, 1234.56, *value, 0.001)
	})

	t.Run("should parse ungrouped amounts", func(t *testing.T) {
		value := ParseAmount("987,40")
		require.NotNil(t, value)
		assert.InDelta(t, 987.40, *value, 0.001)
	})

	t.Run("should parse whole amounts without decimals", func(t *testing.T) {
		value := ParseAmount("1.500")
		require.NotNil(t, value)
		assert.InDelta(t, 1500.0, *value, 0.001)
	})

	t.Run("should parse millions", func(t *testing.T) {
		value := ParseAmount("1.234.567,89")
		require.NotNil(t, value)
		assert.InDelta(t, 1234567.89, *value, 0.001)
	})

	t.Run("should return nil for blank input", func(t *testing.T) {
		assert.Nil(t, ParseAmount(""))
		assert.Nil(t, ParseAmount("   "))
		assert.Nil(t, ParseAmount("R$ "))
	})

	t.Run("should return nil for malformed input", func(t *testing.T) {
		assert.Nil(t, ParseAmount("abc"))
		assert.Nil(t, ParseAmount("12,34,56"))
		assert.Nil(t, ParseAmount("--"))
	})
}

func TestParseDate(t *testing.T) {
	t.Run("should parse DD/MM/YYYY", func(t *testing.T) {
		date := ParseDate("15/08/2025")
		require.NotNil(t, date)
		assert.Equal(t, time.Date(2025, time.August, 15, 0, 0, 0, 0, time.UTC), *date)
	})

	t.Run("should parse ISO dates", func(t *testing.T) {
		date := ParseDate("2025-08-15")
		require.NotNil(t, date)
		assert.Equal(t, time.Date(2025, time.August, 15, 0, 0, 0, 0, time.UTC), *date)
	})

	t.Run("should trim surrounding whitespace", func(t *testing.T) {
		date := ParseDate("  01/01/2026  ")
		require.NotNil(t, date)
		assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), *date)
	})

	t.Run("should return nil for blank input", func(t *testing.T) {
		assert.Nil(t, ParseDate(""))
		assert.Nil(t, ParseDate("  "))
	})

	t.Run("should return nil for impossible dates", func(t *testing.T) {
		assert.Nil(t, ParseDate("31/02/2025"))
		assert.Nil(t, ParseDate("00/00/0000"))
	})

	t.Run("should return nil for malformed input", func(t *testing.T) {
		assert.Nil(t, ParseDate("15-08-2025"))
		assert.Nil(t, ParseDate("soon"))
	})
}

func TestGuessMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", GuessMimeType("fatura.pdf"))
	assert.Equal(t, "application/pdf", GuessMimeType("FATURA.PDF"))
	assert.Equal(t, "image/png", GuessMimeType("comprovante.png"))
	assert.Equal(t, "image/jpeg", GuessMimeType("scan.jpg"))
	assert.Equal(t, "image/jpeg", GuessMimeType("scan.jpeg"))
	assert.Equal(t, "application/xml", GuessMimeType("nota.xml"))
	assert.Equal(t, "application/octet-stream", GuessMimeType("boleto"))
	assert.Equal(t, "application/octet-stream", GuessMimeType("arquivo.zip"))
}
