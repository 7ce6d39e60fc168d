package utils

import (
	"crypto/rand"
	"errors"
	"strings"
)

// SixIDHookFunc lets tests control id generation. Returning override=false
// falls through to random generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook overrides NewSixID when set. Tests only.
var NewSixIDHook SixIDHookFunc

// SixID is a 6-byte random document id, rendered as 10 Crockford base32 characters.
type SixID [6]byte

// NewSixID returns a random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand does not fail on supported platforms; a zero id collides
		// and is retried by the caller's duplicate key handling.
		return SixID{}
	}
	return id
}

// NewDocID returns a fresh document id string.
func NewDocID() string {
	return NewSixID().String()
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecode = func() map[byte]byte {
	m := make(map[byte]byte, 40)
	for i := 0; i < len(crockfordAlphabet); i++ {
		c := crockfordAlphabet[i]
		m[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			m[c+('a'-'A')] = byte(i)
		}
	}
	// Commonly confused characters.
	m['O'], m['o'] = m['0'], m['0']
	m['I'], m['i'] = m['1'], m['1']
	m['L'], m['l'] = m['1'], m['1']
	return m
}()

// String returns the Crockford base32 form of the id.
func (u SixID) String() string {
	out := make([]byte, 0, 10)
	var bits, n uint
	for _, b := range u {
		bits |= uint(b) << n
		n += 8
		for n >= 5 {
			out = append(out, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			n -= 5
		}
	}
	if n > 0 {
		out = append(out, crockfordAlphabet[bits&0x1F])
	}
	return string(out)
}

// ParseSixID decodes a Crockford base32 id. Hyphens and spaces are ignored.
func ParseSixID(s string) (SixID, error) {
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 10 {
		return SixID{}, errors.New("invalid SixID: length must be 10")
	}
	var id SixID
	var bits uint64
	var n uint
	idx := 0
	for i := 0; i < len(s); i++ {
		v, ok := crockfordDecode[s[i]]
		if !ok {
			return SixID{}, errors.New("invalid character in SixID")
		}
		bits |= uint64(v) << n
		n += 5
		for n >= 8 && idx < len(id) {
			id[idx] = byte(bits & 0xFF)
			idx++
			bits >>= 8
			n -= 8
		}
	}
	if idx != len(id) {
		return SixID{}, errors.New("invalid SixID: could not decode 6 bytes")
	}
	return id, nil
}
