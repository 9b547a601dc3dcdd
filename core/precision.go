package core

import (
	"fmt"
	"strings"
)

// Precision is the floating point width used for the device-resident arrays.
type Precision int

const (
	// FP16 stores populations and fields as half floats and computes in float.
	FP16 Precision = iota
	FP32
	FP64
)

// Precisions lists the supported precision tokens.
var Precisions = []Precision{FP16, FP32, FP64}

// ParsePrecision parses "FP16", "FP32" or "FP64" (case-insensitive).
func ParsePrecision(token string) (Precision, error) {
	for _, p := range Precisions {
		if strings.EqualFold(token, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unsupported precision %q", token)
}

func (p Precision) String() string {
	switch p {
	case FP16:
		return "FP16"
	case FP32:
		return "FP32"
	case FP64:
		return "FP64"
	}
	return fmt.Sprintf("Precision(%d)", int(p))
}

// Bytes is the storage size of one element.
func (p Precision) Bytes() int {
	switch p {
	case FP16:
		return 2
	case FP64:
		return 8
	}
	return 4
}

// StorageType is the OpenCL C type of device arrays.
func (p Precision) StorageType() string {
	switch p {
	case FP16:
		return "half"
	case FP64:
		return "double"
	}
	return "float"
}

// ComputeType is the OpenCL C type used for arithmetic.
func (p Precision) ComputeType() string {
	if p == FP64 {
		return "double"
	}
	return "float"
}

// Pragma returns the extension pragma the precision needs, if any. Half
// storage goes through vload_half/vstore_half, which are core OpenCL.
func (p Precision) Pragma() string {
	if p == FP64 {
		return "#pragma OPENCL EXTENSION cl_khr_fp64 : enable"
	}
	return ""
}
