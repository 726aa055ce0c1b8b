package catalog

import (
	"math"
	"strings"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// bloomSize computes Bloom filter parameters from capacity (n) and target FP rate (p):
//
//	m = - (n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// Results are clamped to at least 1.
func bloomSize(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}

// anchorFilter holds the domain anchors of a catalog. It is built once and
// only read afterwards, so it needs no locking.
type anchorFilter struct {
	bf *bitsbloom.BloomFilter
}

func newAnchorFilter(anchors []string, fpRate float64) *anchorFilter {
	m, k := bloomSize(uint64(len(anchors)), fpRate)
	bf := bitsbloom.New(uint(m), uint(k))
	for _, a := range anchors {
		bf.Add([]byte(a))
	}
	return &anchorFilter{bf: bf}
}

// mightMatch tests host and each of its parent domains, most specific first.
// false means no literal or "*."-style pattern can match host.
func (f *anchorFilter) mightMatch(host string) bool {
	for a := host; a != ""; {
		if f.bf.Test([]byte(a)) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			break
		}
		a = a[i+1:]
	}
	return false
}
