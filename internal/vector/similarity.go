package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	s := InnerProduct(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, s))
}

// Normalize returns a unit-length copy of x. The zero vector is returned as a zero copy.
func Normalize(x []float32) []float32 {
	out := make([]float32, len(x))
	n := L2Norm(x)
	if n == 0 {
		return out
	}
	for i, v := range x {
		out[i] = float32(float64(v) / n)
	}
	return out
}

// Centroid returns the normalized mean of the L2-normalized vectors. Every vector must
// have the same length. An empty input yields nil.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		n := L2Norm(v)
		if n == 0 {
			continue
		}
		for j, x := range v {
			sum[j] += float64(x) / n
		}
	}
	out := make([]float32, dim)
	for j, s := range sum {
		out[j] = float32(s)
	}
	return Normalize(out), nil
}

// Clamp01 clamps a similarity score into [0, 1].
func Clamp01(s float64) float64 {
	return math.Max(0, math.Min(1, s))
}

// EncodeFloat32s encodes a vector as little-endian float32 bytes, the layout RediSearch
// expects for FLOAT32 vector fields.
func EncodeFloat32s(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32s is the inverse of EncodeFloat32s.
func DecodeFloat32s(b []byte) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of %d", len(b), size)
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
