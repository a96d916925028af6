package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// NativeDecimals is the number of wei per ether as a power of ten.
	NativeDecimals = 18
	// NativePlaces is the fractional precision amounts are rounded to before
	// conversion to wei.
	NativePlaces = 6
	// QuotePlaces is the fractional precision of USD amounts.
	QuotePlaces = 2
)

// EtherFromWei converts an integer wei amount to ether.
func EtherFromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -NativeDecimals)
}

// WeiFromEther converts ether to wei, dropping anything below one wei.
func WeiFromEther(eth decimal.Decimal) *big.Int {
	return eth.Shift(NativeDecimals).BigInt()
}

// FormatEther renders wei as ether with exactly NativePlaces fractional digits.
func FormatEther(wei *big.Int) string {
	return EtherFromWei(wei).StringFixed(NativePlaces)
}

// FormatUSD renders a USD amount with exactly QuotePlaces fractional digits.
func FormatUSD(usd decimal.Decimal) string {
	return usd.StringFixed(QuotePlaces)
}

// Unit identifies the side of a conversion.
type Unit string

const (
	UnitETH Unit = "ETH"
	UnitUSD Unit = "USD"
)
