package vaultconfig

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"vaultctl/internal/model"
)

// Fields is the decoded form of a configuration word.
type Fields struct {
	DepositFeeFlat     uint64
	DepositFeePct      uint64
	WithdrawalFeeFlat  uint64
	WithdrawalFeePct   uint64
	MaxValueJumpPct    uint64
	FeeRecipient       common.Address
	RiskProfileCode    uint64
	EmergencyShutdown  bool
	Unpaused           bool
	AllowWhitelistOnly bool
	Reserved           uint64
}

// Encode packs fields into a word. It fails with a RangeError when any field
// exceeds its width or reserved bits are set.
func Encode(f Fields) (*uint256.Int, error) {
	if f.Reserved != 0 {
		return nil, &model.RangeError{Field: Reserved.String(), Value: strconv.FormatUint(f.Reserved, 10), Width: 0}
	}

	values := []struct {
		field Field
		value *uint256.Int
	}{
		{DepositFeeFlat, uint256.NewInt(f.DepositFeeFlat)},
		{DepositFeePct, uint256.NewInt(f.DepositFeePct)},
		{WithdrawalFeeFlat, uint256.NewInt(f.WithdrawalFeeFlat)},
		{WithdrawalFeePct, uint256.NewInt(f.WithdrawalFeePct)},
		{MaxValueJumpPct, uint256.NewInt(f.MaxValueJumpPct)},
		{FeeRecipient, AddressValue(f.FeeRecipient)},
		{RiskProfileCode, uint256.NewInt(f.RiskProfileCode)},
		{EmergencyShutdown, BoolValue(f.EmergencyShutdown)},
		{Unpaused, BoolValue(f.Unpaused)},
		{AllowWhitelistOnly, BoolValue(f.AllowWhitelistOnly)},
	}

	word := new(uint256.Int)
	for _, v := range values {
		next, err := WithField(word, v.field, v.value)
		if err != nil {
			return nil, err
		}
		word = next
	}
	return word, nil
}

// Decode unpacks any word. It never fails.
func Decode(word *uint256.Int) Fields {
	if word == nil {
		word = new(uint256.Int)
	}
	return Fields{
		DepositFeeFlat:     Get(word, DepositFeeFlat).Uint64(),
		DepositFeePct:      Get(word, DepositFeePct).Uint64(),
		WithdrawalFeeFlat:  Get(word, WithdrawalFeeFlat).Uint64(),
		WithdrawalFeePct:   Get(word, WithdrawalFeePct).Uint64(),
		MaxValueJumpPct:    Get(word, MaxValueJumpPct).Uint64(),
		FeeRecipient:       common.Address(Get(word, FeeRecipient).Bytes20()),
		RiskProfileCode:    Get(word, RiskProfileCode).Uint64(),
		EmergencyShutdown:  !Get(word, EmergencyShutdown).IsZero(),
		Unpaused:           !Get(word, Unpaused).IsZero(),
		AllowWhitelistOnly: !Get(word, AllowWhitelistOnly).IsZero(),
		Reserved:           Get(word, Reserved).Uint64(),
	}
}

// Get extracts the raw value of a single field. Unknown fields read as zero.
func Get(word *uint256.Int, f Field) *uint256.Int {
	if !f.Valid() || word == nil {
		return new(uint256.Int)
	}
	out := new(uint256.Int).And(word, f.mask())
	return out.Rsh(out, f.Offset())
}

// WithField returns a copy of word with exactly the bits of f replaced by
// value. Every other bit is preserved.
func WithField(word *uint256.Int, f Field, value *uint256.Int) (*uint256.Int, error) {
	if !f.Valid() {
		return nil, model.NewValidationError("field", "unknown field %d", int(f))
	}
	if value == nil {
		value = new(uint256.Int)
	}
	if f == Reserved && !value.IsZero() {
		return nil, &model.RangeError{Field: f.String(), Value: value.ToBig().String(), Width: 0}
	}
	if uint(value.BitLen()) > f.Width() {
		return nil, &model.RangeError{Field: f.String(), Value: value.ToBig().String(), Width: f.Width()}
	}

	base := new(uint256.Int)
	if word != nil {
		base.Set(word)
	}
	cleared := new(uint256.Int).Not(f.mask())
	cleared.And(cleared, base)

	shifted := new(uint256.Int).Lsh(value, f.Offset())
	return cleared.Or(cleared, shifted), nil
}

// BoolValue converts a flag into a field value.
func BoolValue(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return new(uint256.Int)
}

// AddressValue converts an address into a 160-bit field value.
func AddressValue(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(addr.Bytes())
}

// ParseValue parses a textual field value: true/false for flags, a hex
// address for feeRecipient, and a decimal or 0x-prefixed integer otherwise.
func ParseValue(f Field, input string) (*uint256.Int, error) {
	if !f.Valid() {
		return nil, model.NewValidationError("field", "unknown field %d", int(f))
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, model.NewValidationError(f.String(), "empty value")
	}

	switch {
	case f.IsFlag():
		b, err := strconv.ParseBool(input)
		if err != nil {
			return nil, model.NewValidationError(f.String(), "invalid flag %q", input)
		}
		return BoolValue(b), nil
	case f == FeeRecipient:
		if !common.IsHexAddress(input) {
			return nil, model.NewValidationError(f.String(), "invalid address %q", input)
		}
		return AddressValue(common.HexToAddress(input)), nil
	}

	parsed, ok := new(big.Int).SetString(input, 0)
	if !ok || parsed.Sign() < 0 {
		return nil, model.NewValidationError(f.String(), "invalid integer %q", input)
	}
	value, overflow := uint256.FromBig(parsed)
	if overflow || uint(value.BitLen()) > f.Width() {
		return nil, &model.RangeError{Field: f.String(), Value: parsed.String(), Width: f.Width()}
	}
	return value, nil
}

// FormatValue renders a field value the way ParseValue accepts it.
func FormatValue(f Field, value *uint256.Int) string {
	if value == nil {
		value = new(uint256.Int)
	}
	switch {
	case f.IsFlag():
		return strconv.FormatBool(!value.IsZero())
	case f == FeeRecipient:
		return common.Address(value.Bytes20()).Hex()
	default:
		return value.ToBig().String()
	}
}

// Describe renders every field of a word, in bit order.
func Describe(word *uint256.Int) []string {
	out := make([]string, 0, len(layout))
	for i := range layout {
		f := Field(i)
		out = append(out, fmt.Sprintf("%s=%s", f, FormatValue(f, Get(word, f))))
	}
	return out
}
