package domain

import "strings"

// Address is a lower-cased 0x-prefixed account or contract address.
type Address string

// UnknownAddress stands in for an address argument that was absent or malformed.
const UnknownAddress Address = "unknown"

// NormalizeAddress lower-cases a hex address and validates its shape.
// It returns UnknownAddress when s is not a 20-byte hex address.
func NormalizeAddress(s string) Address {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return UnknownAddress
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return UnknownAddress
		}
	}
	return Address(s)
}

// IsKnown reports whether a is a real address rather than the sentinel.
func (a Address) IsKnown() bool {
	return a != UnknownAddress && a != ""
}

func (a Address) String() string {
	return string(a)
}
