package integrity

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	minFieldDegree = 7
	maxFieldDegree = 12
)

// messageBits is the payload plus the CRC-16 that guards it against
// miscorrection.
const messageBits = PayloadBits + 16

// Params are the parameters of a binary narrow-sense BCH code, shortened
// from the primitive length 2^M-1 to N transmitted bits.
type Params struct {
	M int `json:"m" yaml:"m"`
	N int `json:"n" yaml:"n"`
	K int `json:"k" yaml:"k"`
	T int `json:"t" yaml:"t"`
	// Shortened is the number of implicit zero message bits that are not
	// transmitted, N+Shortened = 2^M-1.
	Shortened int `json:"shortened" yaml:"shortened"`
	// Generator is g(x) in hex, highest degree first.
	Generator string `json:"generator" yaml:"generator"`
	// Pad is the number of leading zero message bits before the payload.
	Pad int `json:"pad" yaml:"pad"`
}

func (p Params) String() string {
	return fmt.Sprintf("BCH(%d,%d,%d)", p.N, p.K, p.T)
}

// DeriveParams picks the BCH code for a region of capacityBits. Every field
// GF(2^m), 7 <= m <= 12, is tried with the code shortened to the capacity,
// and the one correcting the most errors while keeping k >= payload+CRC-16
// wins. Ties go to the smaller field.
func DeriveParams(capacityBits int) (Params, error) {
	code, err := designBCH(capacityBits)
	if err != nil {
		return Params{}, err
	}
	return code.params, nil
}

type bch struct {
	params Params
	field  *gf
	gen    []uint8 // generator, lowest degree first
}

func designBCH(capacityBits int) (*bch, error) {
	if capacityBits < 1<<minFieldDegree-1 {
		return nil, fmt.Errorf("%w: fast-robust needs at least %d bits, region holds %d",
			ErrInsufficientCapacity, 1<<minFieldDegree-1, capacityBits)
	}

	var best *bch
	for m := minFieldDegree; m <= maxFieldDegree; m++ {
		code := designInField(newGF(m), min(capacityBits, 1<<m-1))
		if code != nil && (best == nil || code.params.T > best.params.T) {
			best = code
		}
	}
	best.params.Generator = polyHex(best.gen)
	return best, nil
}

// designInField grows t in GF(2^m) until the shortened length can no longer
// carry the message, and returns the last code that could.
func designInField(field *gf, length int) *bch {
	var best *bch
	gen := []uint8{1}
	covered := make(map[int]bool)
	for t := 1; ; t++ {
		// extend g(x) with the minimal polynomials of alpha^(2t-1), alpha^(2t)
		for _, i := range []int{2*t - 1, 2 * t} {
			if covered[i%field.n] {
				continue
			}
			poly, coset := field.minimalPoly(i)
			for _, c := range coset {
				covered[c] = true
			}
			gen = mulBinary(gen, poly)
		}
		k := length - (len(gen) - 1)
		if k < messageBits {
			return best
		}
		best = &bch{
			field: field,
			gen:   append([]uint8(nil), gen...),
			params: Params{
				M:         field.m,
				N:         length,
				K:         k,
				T:         t,
				Shortened: field.n - length,
				Pad:       k - messageBits,
			},
		}
	}
}

func newBCH(capacityBits int) (Scheme, error) {
	return designBCH(capacityBits)
}

func polyHex(p []uint8) string {
	var sb strings.Builder
	deg := len(p) - 1
	// leading partial nibble
	for d := deg - deg%4; d >= 0; d -= 4 {
		v := 0
		for j := 3; j >= 0; j-- {
			v <<= 1
			if d+j <= deg && p[d+j] == 1 {
				v |= 1
			}
		}
		fmt.Fprintf(&sb, "%x", v)
	}
	return sb.String()
}

func (c *bch) Variant() Variant  { return FastRobust }
func (c *bch) CodewordBits() int { return c.params.N }
func (c *bch) Params() Params    { return c.params }

func (c *bch) Contract() Contract {
	p := c.params
	return Contract{
		Variant:      FastRobust,
		Integrity:    "bch",
		PayloadBits:  PayloadBits,
		CodewordBits: p.N,
		CRC:          "CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) of the payload bytes, big-endian after the payload inside the BCH message",
		BCH:          &p,
	}
}

// Encode produces a systematic codeword: Pad zero bits, the payload, its
// CRC-16, then n-k parity bits. Transmitted bit i is the coefficient of
// x^(n-1-i); the shortened high-degree positions are implicit zeros.
func (c *bch) Encode(p Payload) []bool {
	msg := make([]bool, c.params.Pad, c.params.K)
	msg = p.AppendBits(msg)
	var sum [2]byte
	b := p.Bytes()
	binary.BigEndian.PutUint16(sum[:], crc16CCITT(b[:]))
	msg = appendByteBits(msg, sum[:])
	return c.encodeMessage(msg)
}

// encodeMessage appends the parity of k message bits.
func (c *bch) encodeMessage(msg []bool) []bool {
	n, k := c.params.N, c.params.K
	r := n - k

	// remainder of msg(x) * x^r divided by g(x)
	work := make([]uint8, n)
	for i, b := range msg {
		if b {
			work[n-1-i] = 1
		}
	}
	for d := n - 1; d >= r; d-- {
		if work[d] == 0 {
			continue
		}
		for j, g := range c.gen {
			work[d-r+j] ^= g
		}
	}

	out := make([]bool, n)
	copy(out, msg)
	for i := k; i < n; i++ {
		out[i] = work[n-1-i] == 1
	}
	return out
}

// syndromes evaluates the received polynomial at alpha^1..alpha^2t.
// Index j holds S_(j+1). It reports whether all are zero.
func (c *bch) syndromes(recv []uint8) ([]int, bool) {
	t2 := 2 * c.params.T
	s := make([]int, t2)
	clean := true
	for j := 0; j < t2; j++ {
		e := j + 1
		v := 0
		if e%2 == 0 {
			// binary code: S_2i = S_i^2
			v = c.field.mul(s[e/2-1], s[e/2-1])
		} else {
			for d, b := range recv {
				if b == 1 {
					v ^= c.field.alpha(e * d)
				}
			}
		}
		s[j] = v
		if v != 0 {
			clean = false
		}
	}
	return s, clean
}

// berlekampMassey returns the error locator polynomial, lowest degree first,
// and its linear complexity.
func (c *bch) berlekampMassey(s []int) ([]int, int) {
	f := c.field
	lambda := []int{1}
	prev := []int{1}
	l, shift, lastD := 0, 1, 1

	for i := range s {
		d := s[i]
		for j := 1; j <= l && j < len(lambda); j++ {
			d ^= f.mul(lambda[j], s[i-j])
		}
		if d == 0 {
			shift++
			continue
		}
		coef := f.mul(d, f.inv(lastD))
		next := make([]int, max(len(lambda), len(prev)+shift))
		copy(next, lambda)
		for j, p := range prev {
			next[j+shift] ^= f.mul(coef, p)
		}
		if 2*l <= i {
			prev = lambda
			l = i + 1 - l
			lastD = d
			shift = 1
		} else {
			shift++
		}
		lambda = next
	}

	for len(lambda) > 1 && lambda[len(lambda)-1] == 0 {
		lambda = lambda[:len(lambda)-1]
	}
	return lambda, l
}

// Decode corrects up to t bit errors. Anything the code cannot vouch for
// is reported as ErrUncorrectable, never as a payload.
func (c *bch) Decode(codeword []bool) (Decoded, error) {
	n := c.params.N
	if err := checkLength(codeword, n); err != nil {
		return Decoded{}, err
	}
	if uniform(codeword) {
		return Decoded{}, ErrNoStamp
	}

	recv := make([]uint8, n)
	for i, b := range codeword {
		if b {
			recv[n-1-i] = 1
		}
	}

	corrected := 0
	s, clean := c.syndromes(recv)
	if !clean {
		lambda, l := c.berlekampMassey(s)
		if l > c.params.T || len(lambda)-1 != l {
			return Decoded{}, fmt.Errorf("%w: locator degree %d exceeds t=%d", ErrUncorrectable, len(lambda)-1, c.params.T)
		}

		// Chien search: an error at degree d makes alpha^(-d) a root. Roots
		// in the shortened positions are never counted, so they fail below.
		var positions []int
		for d := 0; d < n; d++ {
			v := 0
			for j, coef := range lambda {
				if coef != 0 {
					v ^= c.field.mul(coef, c.field.alpha(-d*j))
				}
			}
			if v == 0 {
				positions = append(positions, d)
			}
		}
		if len(positions) != l {
			return Decoded{}, fmt.Errorf("%w: found %d roots for %d errors", ErrUncorrectable, len(positions), l)
		}
		for _, d := range positions {
			recv[d] ^= 1
		}
		if _, ok := c.syndromes(recv); !ok {
			return Decoded{}, fmt.Errorf("%w: residual syndrome after correction", ErrUncorrectable)
		}
		corrected = l
	}

	msg := make([]bool, c.params.K)
	for i := range msg {
		msg[i] = recv[n-1-i] == 1
	}
	for _, b := range msg[:c.params.Pad] {
		if b {
			return Decoded{}, fmt.Errorf("%w: non-zero padding", ErrUncorrectable)
		}
	}
	p := PayloadFromBits(msg[c.params.Pad:])
	var got uint16
	for _, bit := range msg[c.params.Pad+PayloadBits:] {
		got <<= 1
		if bit {
			got |= 1
		}
	}
	b := p.Bytes()
	if want := crc16CCITT(b[:]); got != want {
		return Decoded{}, fmt.Errorf("%w: crc %04x after correcting %d bits, computed %04x",
			ErrUncorrectable, got, corrected, want)
	}
	return Decoded{Payload: p, Corrected: corrected}, nil
}
