// Package vecmath holds the similarity arithmetic shared by the vector stores.
package vecmath

import (
	"encoding/binary"
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Scored is one candidate in a similarity ranking.
type Scored struct {
	ID         string
	Similarity float64
	Seq        int64
}

// Rank sorts by descending similarity, then ascending Seq, and keeps k.
func Rank(items []Scored, k int) []Scored {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Similarity != items[j].Similarity {
			return items[i].Similarity > items[j].Similarity
		}
		return items[i].Seq < items[j].Seq
	})
	if k >= 0 && len(items) > k {
		items = items[:k]
	}
	return items
}

// Encode packs a vector as little-endian float32 bytes.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode unpacks bytes written by Encode. Trailing bytes are ignored.
func Decode(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
