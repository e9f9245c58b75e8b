package events

import (
	"math/big"
	"strconv"
	"strings"

	"leadfive/core/types"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr types.Address) string {
	return strings.ToLower(addr.Hex())
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
