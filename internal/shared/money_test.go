package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatBRLCarriesCurrencySymbol(t *testing.T) {
	formatted := FormatBRL(199.9)
	require.True(t, strings.Contains(formatted, "R$"), "expected BRL symbol, got %q", formatted)
}
