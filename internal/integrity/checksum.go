package integrity

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// checksumBits is payload followed by a CRC-32C of the payload bytes.
const checksumBits = PayloadBits + 32

type checksum struct{}

func (checksum) Variant() Variant  { return Optimized }
func (checksum) CodewordBits() int { return checksumBits }

func (checksum) Encode(p Payload) []bool {
	b := p.Bytes()
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.Checksum(b[:], castagnoli))
	out := make([]bool, 0, checksumBits)
	out = appendByteBits(out, b[:])
	return appendByteBits(out, sum[:])
}

func (checksum) Decode(codeword []bool) (Decoded, error) {
	if err := checkLength(codeword, checksumBits); err != nil {
		return Decoded{}, err
	}
	if uniform(codeword) {
		return Decoded{}, ErrNoStamp
	}
	p := PayloadFromBits(codeword[:PayloadBits])
	var got uint32
	for _, bit := range codeword[PayloadBits:] {
		got <<= 1
		if bit {
			got |= 1
		}
	}
	b := p.Bytes()
	if want := crc32.Checksum(b[:], castagnoli); got != want {
		return Decoded{}, fmt.Errorf("%w: crc %08x, computed %08x", ErrIntegrityCheckFailed, got, want)
	}
	return Decoded{Payload: p}, nil
}

func (c checksum) Contract() Contract {
	return Contract{
		Variant:      Optimized,
		Integrity:    "crc",
		PayloadBits:  PayloadBits,
		CodewordBits: c.CodewordBits(),
		CRC:          "CRC-32C (Castagnoli, reflected poly 0x82F63B78, init 0xFFFFFFFF, xorout 0xFFFFFFFF), big-endian after payload",
	}
}

// crc16CCITT is CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF, no reflection.
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
