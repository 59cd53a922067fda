package vecmath

import "math"

// Cosine returns the cosine similarity between a float32 vector and a float64
// vector of the same length. Zero vectors score 0.
func Cosine(a []float32, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		dot += x * b[i]
		normA += x * x
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Finite reports whether every component of v is a finite number.
func Finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Finite64 is Finite for float64 vectors.
func Finite64(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// ToFloat64 widens v into a new slice.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ToFloat32 narrows v into a new slice.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// MeanUpdate folds sample into mean in place, where mean currently averages
// count samples: mean = (mean*count + sample) / (count+1).
func MeanUpdate(mean []float64, count int, sample []float32) {
	n := float64(count)
	for i := range mean {
		mean[i] = (mean[i]*n + float64(sample[i])) / (n + 1)
	}
}

// Blend sets dst to keep*dst + (1-keep)*sample and rescales it to unit length.
func Blend(dst []float64, keep float64, sample []float32) {
	for i := range dst {
		dst[i] = keep*dst[i] + (1-keep)*float64(sample[i])
	}
	Normalize(dst)
}

// Normalize rescales v in place to unit length. A zero vector is left as is.
func Normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
