package seria

import "golang.org/x/exp/constraints"

// zigzag maps signed values onto the unsigned varint space so that small
// magnitudes of either sign stay short on the wire.
func zigzag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }

func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }

// VarUintLen reports the encoded size of v in bytes.
func VarUintLen[T constraints.Unsigned](v T) int {
	n := 1
	for u := uint64(v); u >= 0x80; u >>= 7 {
		n++
	}
	return n
}

// VarIntLen reports the encoded size of v after zigzag mapping.
func VarIntLen[T constraints.Signed](v T) int {
	return VarUintLen(zigzag(int64(v)))
}
