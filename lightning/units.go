package lightning

import "math"

const (
	// MsatPerSat is the number of millisatoshi in one satoshi.
	MsatPerSat = 1_000
	// SatPerBTC is the number of satoshi in one bitcoin.
	SatPerBTC = 100_000_000
)

// MsatToSat converts millisatoshi to whole satoshi, flooring the remainder.
func MsatToSat(msat int64) int64 {
	return msat / MsatPerSat
}

// SatToMsat converts satoshi to millisatoshi.
func SatToMsat(sat int64) int64 {
	return sat * MsatPerSat
}

// SatToBTC converts satoshi to a bitcoin amount.
func SatToBTC(sat int64) float64 {
	return float64(sat) / SatPerBTC
}

// BTCToSat converts a bitcoin amount to satoshi, truncating toward zero.
func BTCToSat(btc float64) int64 {
	return int64(math.Trunc(btc * SatPerBTC))
}
