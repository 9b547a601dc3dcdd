package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Device memory is little endian, which every supported device is.

// EncodeFloats converts host values to the byte layout of kind.
func EncodeFloats(kind ElemKind, src []float64) []byte {
	out := make([]byte, len(src)*kind.Size())
	for i, v := range src {
		PutFloat(kind, out, i, v)
	}
	return out
}

// DecodeFloats fills dst from device bytes of kind.
func DecodeFloats(kind ElemKind, src []byte, dst []float64) error {
	if len(src) != len(dst)*kind.Size() {
		return fmt.Errorf("gpu: decoding %d bytes of %s into %d values", len(src), kind, len(dst))
	}
	for i := range dst {
		dst[i] = GetFloat(kind, src, i)
	}
	return nil
}

// EncodeInts converts int32 values to device bytes.
func EncodeInts(src []int32) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

// DecodeInts fills dst from device bytes.
func DecodeInts(src []byte, dst []int32) error {
	if len(src) != len(dst)*4 {
		return fmt.Errorf("gpu: decoding %d bytes of int into %d values", len(src), len(dst))
	}
	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return nil
}

// GetFloat reads element i of a float buffer.
func GetFloat(kind ElemKind, b []byte, i int) float64 {
	switch kind {
	case Half:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b[i*2:])).Float32())
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b[i*4:])))
	}
	panic(fmt.Sprintf("gpu: unknown element kind %d", int(kind)))
}

// PutFloat writes element i of a float buffer.
func PutFloat(kind ElemKind, b []byte, i int, v float64) {
	switch kind {
	case Half:
		binary.LittleEndian.PutUint16(b[i*2:], float16.Fromfloat32(float32(v)).Bits())
	case Float:
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(v)))
	case Double:
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	case Int32:
		binary.LittleEndian.PutUint32(b[i*4:], uint32(int32(v)))
	default:
		panic(fmt.Sprintf("gpu: unknown element kind %d", int(kind)))
	}
}
