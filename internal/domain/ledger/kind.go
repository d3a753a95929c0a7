package ledger

// Kind is the operation that produced a ledger entry. It fixes the sign of the
// entry amount and which auxiliary fields are required.
type Kind string

const (
	KindSpend             Kind = "spend"
	KindEarn              Kind = "earn"
	KindRefund            Kind = "refund"
	KindAdminAdd          Kind = "admin_add"
	KindAdminSubtract     Kind = "admin_subtract"
	KindRegistrationBonus Kind = "registration_bonus"
)

// Kinds returns every known kind in display order
func Kinds() []Kind {
	return []Kind{KindSpend, KindEarn, KindRefund, KindAdminAdd, KindAdminSubtract, KindRegistrationBonus}
}

// ParseKind converts a raw string into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

func (k Kind) IsValid() bool {
	switch k {
	case KindSpend, KindEarn, KindRefund, KindAdminAdd, KindAdminSubtract, KindRegistrationBonus:
		return true
	}
	return false
}

// IsDebit reports whether entries of this kind carry a negative amount
func (k Kind) IsDebit() bool {
	return k == KindSpend || k == KindAdminSubtract
}

// Sign is -1 for debits and +1 for credits
func (k Kind) Sign() int64 {
	if k.IsDebit() {
		return -1
	}
	return 1
}

// RequiresToolReference reports whether the kind must name the consuming tool.
// Only spends carry a tool reference.
func (k Kind) RequiresToolReference() bool {
	return k == KindSpend
}

// Direction of an administrative adjustment
type Direction string

const (
	DirectionAdd      Direction = "add"
	DirectionSubtract Direction = "subtract"
)

func (d Direction) IsValid() bool {
	return d == DirectionAdd || d == DirectionSubtract
}

// Kind maps the direction to its admin entry kind
func (d Direction) Kind() Kind {
	if d == DirectionSubtract {
		return KindAdminSubtract
	}
	return KindAdminAdd
}
