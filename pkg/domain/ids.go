package domain

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "rentvault/pkg/domain-errors"
)

// Address identifies an account that can hold custody balance: a counterparty,
// an administrator, an instance escrow account or the registry fee account.
//
// Invariant: non-empty, lowercase, no surrounding whitespace. The zero value is
// the "unset" sentinel used when a deposit is created without a designated
// renter.
type Address string

// ZeroAddress is the unset-party sentinel.
const ZeroAddress Address = ""

// ParseAddress constructs an Address from external input.
//
// Usage: call from handlers/adapters when parsing requests; direct casting
// bypasses validation.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAddress, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	return Address(strings.ToLower(s)), nil
}

// IsZero reports whether the address is the unset sentinel.
func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string { return string(a) }

// InstanceID identifies a deposit instance. IDs are assigned by the instance
// registry, start at 0 and increase monotonically.
type InstanceID uint64

func (id InstanceID) String() string { return strconv.FormatUint(uint64(id), 10) }

// EscrowAccount derives the custody-ledger account that holds this instance's
// deposit while it is not invested.
func (id InstanceID) EscrowAccount() Address {
	return Address(fmt.Sprintf("instance:%d", uint64(id)))
}

// ParseInstanceID parses an instance id from external input (URL params).
func ParseInstanceID(s string) (InstanceID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid instance id")
	}
	return InstanceID(n), nil
}

// VersionID identifies a template version in the registry's append-only
// version log. Version 0 is the template the registry was constructed with.
type VersionID uint64

func (id VersionID) String() string { return strconv.FormatUint(uint64(id), 10) }
