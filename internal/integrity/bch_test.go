package integrity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveParams(t *testing.T) {
	tests := []struct {
		capacity int
		want     string
		m, pad   int
		short    int
	}{
		{127, "BCH(127,99,4)", 7, 3, 0},
		{200, "BCH(200,100,13)", 8, 4, 55},
		{256, "BCH(255,99,23)", 8, 3, 0},
		{511, "BCH(511,103,61)", 9, 7, 0},
		{1000, "BCH(1000,98,171)", 10, 2, 23},
		{4096, "BCH(4095,98,877)", 12, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p, err := DeriveParams(tt.capacity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Equal(t, tt.m, p.M)
			assert.Equal(t, tt.pad, p.Pad)
			assert.Equal(t, tt.short, p.Shortened)
			assert.Equal(t, 1<<p.M-1, p.N+p.Shortened)
			assert.Equal(t, messageBits+p.Pad, p.K)
			assert.LessOrEqual(t, p.N, tt.capacity)
		})
	}

	_, err := DeriveParams(126)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestDeriveParams_FillsRegionUnlessSmallerFieldCorrectsMore(t *testing.T) {
	for capacity := 127; capacity <= 1100; capacity += 37 {
		p, err := DeriveParams(capacity)
		require.NoError(t, err)
		if p.N < capacity {
			// the full-length code of the smaller field beat every
			// shortened code of the next one
			assert.Zero(t, p.Shortened, "capacity %d: %s", capacity, p)
			bigger := designInField(newGF(p.M+1), capacity)
			if bigger != nil {
				assert.LessOrEqual(t, bigger.params.T, p.T, "capacity %d", capacity)
			}
		}
	}
}

func TestGF_Tables(t *testing.T) {
	for m := minFieldDegree; m <= maxFieldDegree; m++ {
		f := newGF(m)
		seen := make(map[int]bool, f.n)
		for i := 0; i < f.n; i++ {
			v := f.exp[i]
			assert.False(t, seen[v], "alpha^%d repeats in GF(2^%d)", i, m)
			seen[v] = true
			assert.Equal(t, 1, f.mul(v, f.inv(v)))
		}
		assert.Len(t, seen, f.n)
	}
}

func TestMinimalPoly_HasRoots(t *testing.T) {
	f := newGF(8)
	poly, coset := f.minimalPoly(3)
	assert.Equal(t, []int{3, 6, 12, 24, 48, 96, 192, 129}, coset)
	assert.Len(t, poly, len(coset)+1)
	for _, e := range coset {
		v := 0
		for d, c := range poly {
			if c == 1 {
				v ^= f.alpha(e * d)
			}
		}
		assert.Zero(t, v, "alpha^%d", e)
	}
}

func TestBCH_SystematicLayout(t *testing.T) {
	code, err := designBCH(256)
	require.NoError(t, err)
	p := Payload{Timestamp: e2eTimestamp, Seq: 9}
	cw := code.Encode(p)

	for i := 0; i < code.params.Pad; i++ {
		assert.False(t, cw[i])
	}
	payloadEnd := code.params.Pad + PayloadBits
	assert.Equal(t, p.AppendBits(nil), cw[code.params.Pad:payloadEnd])
	b := p.Bytes()
	assert.Equal(t, uint64(crc16CCITT(b[:])), toUint(cw[payloadEnd:code.params.K]))

	recv := make([]uint8, code.params.N)
	for i, b := range cw {
		if b {
			recv[code.params.N-1-i] = 1
		}
	}
	_, clean := code.syndromes(recv)
	assert.True(t, clean)
}

func TestCRC16CCITT(t *testing.T) {
	assert.Equal(t, uint16(0x29b1), crc16CCITT([]byte("123456789")))
	assert.Equal(t, uint16(0xe139), crc16CCITT(make([]byte, 10)))
}

func TestBCH_CorrectsUpToT(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, capacity := range []int{127, 200, 256} {
		code, err := designBCH(capacity)
		require.NoError(t, err)
		n, tt := code.params.N, code.params.T

		for errs := 0; errs <= tt; errs++ {
			p := Payload{Timestamp: r.Uint64(), Seq: uint16(r.Intn(1 << 16))}
			cw := code.Encode(p)
			for _, i := range r.Perm(n)[:errs] {
				cw[i] = !cw[i]
			}
			d, err := code.Decode(cw)
			require.NoError(t, err, "%s with %d errors", code.params, errs)
			assert.Equal(t, p, d.Payload)
			assert.Equal(t, errs, d.Corrected)
		}
	}
}

func TestBCH_BeyondTIsDetected(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for _, capacity := range []int{127, 200, 256} {
		code, err := designBCH(capacity)
		require.NoError(t, err)
		n, tt := code.params.N, code.params.T

		for trial := 0; trial < 50; trial++ {
			p := Payload{Timestamp: r.Uint64(), Seq: uint16(trial)}
			cw := code.Encode(p)
			for _, i := range r.Perm(n)[:tt+1] {
				cw[i] = !cw[i]
			}
			_, err := code.Decode(cw)
			assert.ErrorIs(t, err, ErrUncorrectable, "%s", code.params)
		}
	}
}

func TestBCH_CorruptedPaddingRejected(t *testing.T) {
	code, err := designBCH(256)
	require.NoError(t, err)

	// A valid codeword whose pad bits are set is never a stamped payload.
	msg := make([]bool, code.params.K)
	msg[0] = true
	_, err = code.Decode(code.encodeMessage(msg))
	assert.ErrorIs(t, err, ErrUncorrectable)
}

func TestBCH_ChecksumMismatchRejected(t *testing.T) {
	for _, capacity := range []int{127, 200, 256} {
		code, err := designBCH(capacity)
		require.NoError(t, err)

		// A valid codeword with zero padding but the wrong CRC-16 is what a
		// miscorrection onto a neighbouring codeword looks like.
		p := Payload{Timestamp: e2eTimestamp, Seq: 3}
		msg := make([]bool, code.params.Pad, code.params.K)
		msg = p.AppendBits(msg)
		b := p.Bytes()
		sum := crc16CCITT(b[:]) ^ 0x0100
		msg = appendByteBits(msg, []byte{byte(sum >> 8), byte(sum)})

		cw := code.encodeMessage(msg)
		_, err = code.Decode(cw)
		assert.ErrorIs(t, err, ErrUncorrectable, "%s", code.params)

		cw[code.params.N-1] = !cw[code.params.N-1]
		_, err = code.Decode(cw)
		assert.ErrorIs(t, err, ErrUncorrectable, "%s after one flip", code.params)
	}
}

func TestBCH_ShortenedCodeSpansCapacity(t *testing.T) {
	code, err := designBCH(200)
	require.NoError(t, err)
	require.Equal(t, 200, code.CodewordBits())

	p := Payload{Timestamp: e2eTimestamp, Seq: 77}
	cw := code.Encode(p)
	require.Len(t, cw, 200)
	// errors at both ends of the transmitted word
	for _, i := range []int{0, 1, 2, 100, 197, 198, 199} {
		cw[i] = !cw[i]
	}
	d, err := code.Decode(cw)
	require.NoError(t, err)
	assert.Equal(t, p, d.Payload)
	assert.Equal(t, 7, d.Corrected)
}
