// Package bdaddr provides the Bluetooth device address type used to identify
// a Hands-Free peer across the SCO link controller, the capability cache and
// the session registry.
package bdaddr

import (
	"errors"
	"strings"
)

// Length is the number of octets in a Bluetooth device address.
const Length = 6

// stringLength is the length of the canonical "AA:BB:CC:DD:EE:FF" form.
const stringLength = Length*3 - 1

// ErrInvalidAddress is returned when a string cannot be parsed as a device address.
var ErrInvalidAddress = errors.New("bdaddr: invalid Bluetooth address")

// Address is a 48-bit Bluetooth device address. Octets are kept in the order
// they are written, so Address{0xAA, ...} prints as "AA:...".
type Address [Length]byte

// Zero is the all-zero address. It never identifies a real peer.
var Zero Address

// Parse parses an address in "AA:BB:CC:DD:EE:FF" form. Hex digits may be
// upper or lower case; "-" is accepted as a separator as well as ":".
//
// Parameters:
//   - s: The address string
//
// Returns:
//   - The parsed Address
//   - ErrInvalidAddress if s is malformed
func Parse(s string) (Address, error) {
	var a Address

	if len(s) != stringLength {
		return a, ErrInvalidAddress
	}

	for i := 0; i < Length; i++ {
		off := i * 3
		if i > 0 {
			sep := s[off-1]
			if sep != ':' && sep != '-' {
				return Address{}, ErrInvalidAddress
			}
		}

		hi, ok := fromHex(s[off])
		if !ok {
			return Address{}, ErrInvalidAddress
		}

		lo, ok := fromHex(s[off+1])
		if !ok {
			return Address{}, ErrInvalidAddress
		}

		a[i] = hi<<4 | lo
	}

	return a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return a
}

// String returns the address in upper-case "AA:BB:CC:DD:EE:FF" form.
func (a Address) String() string {
	const digits = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(stringLength)
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0f])
	}

	return sb.String()
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, which lets configuration
// and cache decoders read addresses directly from strings.
func (a *Address) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*a = parsed
	return nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
