package dto

import (
	"math/big"
	"regexp"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var weiRe = regexp.MustCompile(`^[0-9]{1,78}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("wallet_addr", validateWalletAddress)
		_ = v.RegisterValidation("wei_amount", validateWeiAmount)
	}
}

// validateWalletAddress accepts 0x-prefixed addresses, checksummed or single-case.
func validateWalletAddress(fl validator.FieldLevel) bool {
	return domain.IsValidAddress(fl.Field().String())
}

// validateWeiAmount accepts positive base-10 integers that fit NUMERIC(78,0).
func validateWeiAmount(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if !weiRe.MatchString(raw) {
		return false
	}
	n, ok := ParseWei(raw)
	return ok && n.Sign() > 0
}

// ParseWei parses a base-10 wei amount.
func ParseWei(raw string) (*big.Int, bool) {
	if !weiRe.MatchString(raw) {
		return nil, false
	}
	return new(big.Int).SetString(raw, 10)
}
