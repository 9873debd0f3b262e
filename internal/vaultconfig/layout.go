package vaultconfig

import (
	"strings"

	"github.com/holiman/uint256"
)

// Field names one bit range of the vault configuration word.
type Field int

// Fields in bit order. The layout is fixed by the deployed vault contract.
const (
	DepositFeeFlat Field = iota
	DepositFeePct
	WithdrawalFeeFlat
	WithdrawalFeePct
	MaxValueJumpPct
	FeeRecipient
	RiskProfileCode
	EmergencyShutdown
	Unpaused
	AllowWhitelistOnly
	Reserved
)

type bitRange struct {
	name   string
	offset uint
	width  uint
}

var layout = [...]bitRange{
	DepositFeeFlat:     {"depositFeeFlat", 0, 16},
	DepositFeePct:      {"depositFeePct", 16, 16},
	WithdrawalFeeFlat:  {"withdrawalFeeFlat", 32, 16},
	WithdrawalFeePct:   {"withdrawalFeePct", 48, 16},
	MaxValueJumpPct:    {"maxValueJumpPct", 64, 16},
	FeeRecipient:       {"feeRecipient", 80, 160},
	RiskProfileCode:    {"riskProfileCode", 240, 8},
	EmergencyShutdown:  {"emergencyShutdown", 248, 1},
	Unpaused:           {"unpaused", 249, 1},
	AllowWhitelistOnly: {"allowWhitelistOnly", 250, 1},
	Reserved:           {"reserved", 251, 5},
}

// Settable lists the fields operators may assign. Reserved is excluded.
var Settable = []Field{
	DepositFeeFlat,
	DepositFeePct,
	WithdrawalFeeFlat,
	WithdrawalFeePct,
	MaxValueJumpPct,
	FeeRecipient,
	RiskProfileCode,
	EmergencyShutdown,
	Unpaused,
	AllowWhitelistOnly,
}

// Valid reports whether f names a field of the layout.
func (f Field) Valid() bool {
	return f >= DepositFeeFlat && f <= Reserved
}

func (f Field) String() string {
	if !f.Valid() {
		return "unknown"
	}
	return layout[f].name
}

// Offset returns the index of the field's least significant bit, or 0 for an
// unknown field.
func (f Field) Offset() uint {
	if !f.Valid() {
		return 0
	}
	return layout[f].offset
}

// Width returns the field width in bits, or 0 for an unknown field.
func (f Field) Width() uint {
	if !f.Valid() {
		return 0
	}
	return layout[f].width
}

// IsFlag reports whether the field is a single-bit boolean.
func (f Field) IsFlag() bool { return f.Valid() && layout[f].width == 1 && f != Reserved }

// ParseField resolves a field by name, ignoring case.
func ParseField(name string) (Field, bool) {
	name = strings.TrimSpace(name)
	for i, r := range layout {
		if strings.EqualFold(r.name, name) {
			return Field(i), true
		}
	}
	return 0, false
}

// mask returns width one-bits shifted into the field position.
func (f Field) mask() *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), f.Width())
	m.SubUint64(m, 1)
	return m.Lsh(m, f.Offset())
}
