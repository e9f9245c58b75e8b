package config

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal amount such as "30" or "0.25" into base
// units with the given number of decimals.
func ParseUnits(raw string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", raw, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok || strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	s := new(big.Int).Abs(value).String()
	if decimals > 0 {
		if len(s) <= int(decimals) {
			s = strings.Repeat("0", int(decimals)-len(s)+1) + s
		}
		cut := len(s) - int(decimals)
		s = strings.TrimRight(s[:cut]+"."+s[cut:], "0")
		s = strings.TrimSuffix(s, ".")
	}
	if value.Sign() < 0 {
		return "-" + s
	}
	return s
}
