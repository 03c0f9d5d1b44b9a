// Package integrity turns a timestamp payload into the bit codeword that is
// painted into a frame, and back, with optional corruption detection (CRC)
// or correction (binary BCH).
package integrity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIntegrityCheckFailed = errors.New("integrity: checksum mismatch")
	ErrUncorrectable        = errors.New("integrity: uncorrectable codeword")
	ErrInsufficientCapacity = errors.New("integrity: region capacity too small for codeword")
	ErrCodewordLength       = errors.New("integrity: codeword length mismatch")
	ErrUnknownVariant       = errors.New("integrity: unknown stamper variant")
	// ErrNoStamp means the region carries no codeword at all, as opposed to
	// a damaged one.
	ErrNoStamp = errors.New("integrity: no stamp in region")
)

// Variant selects the integrity scheme. Both ends of a session must agree.
type Variant string

const (
	Original   Variant = "original"
	Optimized  Variant = "optimized"
	FastRobust Variant = "fast-robust"
)

// DefaultVariant is the checksummed scheme.
const DefaultVariant = Optimized

// Variants lists the accepted variants.
func Variants() []Variant {
	return []Variant{Original, Optimized, FastRobust}
}

// ParseVariant accepts the variant names case-insensitively, plus
// "fastrobust" as an alias of "fast-robust".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "original":
		return Original, nil
	case "optimized":
		return Optimized, nil
	case "fast-robust", "fastrobust":
		return FastRobust, nil
	}
	return "", fmt.Errorf("%w: %q (must be one of original, optimized, fast-robust)", ErrUnknownVariant, s)
}

// PayloadBits is the wire size of a Payload.
const PayloadBits = 80

// Payload is what a stamper embeds: a monotonic timestamp in nanoseconds
// and a rolling sequence number.
type Payload struct {
	Timestamp uint64 `json:"timestamp_ns" yaml:"timestamp_ns"`
	Seq       uint16 `json:"seq" yaml:"seq"`
}

// Bytes is the big-endian wire form: 8 timestamp bytes then 2 sequence bytes.
func (p Payload) Bytes() [10]byte {
	var b [10]byte
	binary.BigEndian.PutUint64(b[:8], p.Timestamp)
	binary.BigEndian.PutUint16(b[8:], p.Seq)
	return b
}

// AppendBits appends the payload MSB-first.
func (p Payload) AppendBits(dst []bool) []bool {
	b := p.Bytes()
	return appendByteBits(dst, b[:])
}

// PayloadFromBits decodes PayloadBits MSB-first bits.
func PayloadFromBits(bits []bool) Payload {
	var p Payload
	for i := 0; i < 64; i++ {
		p.Timestamp <<= 1
		if bits[i] {
			p.Timestamp |= 1
		}
	}
	for i := 64; i < PayloadBits; i++ {
		p.Seq <<= 1
		if bits[i] {
			p.Seq |= 1
		}
	}
	return p
}

func appendByteBits(dst []bool, b []byte) []bool {
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			dst = append(dst, v>>uint(i)&1 == 1)
		}
	}
	return dst
}

// Decoded is a successfully decoded payload.
type Decoded struct {
	Payload Payload
	// Corrected is the number of bit errors repaired.
	Corrected int
}

// Contract documents the exact wire parameters of a scheme.
type Contract struct {
	Variant      Variant `json:"variant" yaml:"variant"`
	Integrity    string  `json:"integrity" yaml:"integrity"`
	PayloadBits  int     `json:"payload_bits" yaml:"payload_bits"`
	CodewordBits int     `json:"codeword_bits" yaml:"codeword_bits"`
	CRC          string  `json:"crc,omitempty" yaml:"crc,omitempty"`
	BCH          *Params `json:"bch,omitempty" yaml:"bch,omitempty"`
}

// Scheme encodes payloads to codewords and back.
type Scheme interface {
	Variant() Variant
	CodewordBits() int
	Encode(p Payload) []bool
	Decode(codeword []bool) (Decoded, error)
	Contract() Contract
}

// New builds the scheme for variant that fits capacityBits.
func New(v Variant, capacityBits int) (Scheme, error) {
	var s Scheme
	switch v {
	case Original:
		s = none{}
	case Optimized:
		s = checksum{}
	case FastRobust:
		return newBCH(capacityBits)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, string(v))
	}
	if s.CodewordBits() > capacityBits {
		return nil, fmt.Errorf("%w: %s needs %d bits, region holds %d",
			ErrInsufficientCapacity, v, s.CodewordBits(), capacityBits)
	}
	return s, nil
}

// uniform reports whether every bit is equal. Neither checked scheme ever
// emits such a codeword, so it marks a blank region.
func uniform(codeword []bool) bool {
	for _, b := range codeword[1:] {
		if b != codeword[0] {
			return false
		}
	}
	return true
}

func checkLength(codeword []bool, want int) error {
	if len(codeword) != want {
		return fmt.Errorf("%w: got %d bits, want %d", ErrCodewordLength, len(codeword), want)
	}
	return nil
}

// none carries the payload verbatim.
type none struct{}

func (none) Variant() Variant  { return Original }
func (none) CodewordBits() int { return PayloadBits }
func (none) Encode(p Payload) []bool {
	return p.AppendBits(make([]bool, 0, PayloadBits))
}

func (none) Decode(codeword []bool) (Decoded, error) {
	if err := checkLength(codeword, PayloadBits); err != nil {
		return Decoded{}, err
	}
	return Decoded{Payload: PayloadFromBits(codeword)}, nil
}

func (n none) Contract() Contract {
	return Contract{Variant: Original, Integrity: "none", PayloadBits: PayloadBits, CodewordBits: n.CodewordBits()}
}
