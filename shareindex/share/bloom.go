package share

import (
	"strings"
	"unicode"

	"github.com/bits-and-blooms/bloom/v3"
)

// minTokenLength is the minimum substring length tracked by the bloom
// filter and required of search tokens for the fast-reject to apply.
const minTokenLength = 2

const (
	defaultBloomM uint = 1 << 20
	defaultBloomK uint = 5
)

// Filter is the probabilistic membership set over lowercased filename
// substrings used by keyword search as a fast "definitely not shared"
// reject. Wraps bits-and-blooms/bloom/v3 rather than a hand-rolled
// bitset, matching the bitset family the pack already depends on
// transitively through RoaringBitmap/roaring.
type Filter struct {
	bf *bloom.BloomFilter
}

// NewFilter builds an empty filter with m bits and k hash functions.
func NewFilter(m, k uint) *Filter {
	return &Filter{bf: bloom.New(m, k)}
}

// NewDefaultFilter builds a filter sized for typical share counts with
// the source's k=5.
func NewDefaultFilter() *Filter {
	return NewFilter(defaultBloomM, defaultBloomK)
}

// AddName tokenizes name and adds every resulting substring.
func (f *Filter) AddName(name string) {
	for _, tok := range tokenizeForBloom(name) {
		f.bf.AddString(tok)
	}
}

// MaybeContains reports whether token might have been added. A false
// result is a guarantee of absence; a true result is not a guarantee of
// presence.
func (f *Filter) MaybeContains(token string) bool {
	if len(token) < minTokenLength {
		return true
	}
	return f.bf.TestString(strings.ToLower(token))
}

// Export returns the filter's parameters k and m together with the
// filter's gob encoding (the bloom library's GobEncode output, which
// carries m, k and the bit set), for distribution to peers as a
// DHT-prefix advertisement. The returned bytes are not the bare bit
// array; on an encoding error they are nil.
func (f *Filter) Export() (k, m uint, bits []byte) {
	k = f.bf.K()
	m = f.bf.Cap()
	data, err := f.bf.GobEncode()
	if err != nil {
		return k, m, nil
	}
	return k, m, data
}

// tokenizeForBloom splits name into alphanumeric words and returns every
// substring of each word with length >= minTokenLength, lowercased. This
// guarantees invariant 3 (every tokenized substring of length >= L tests
// positive) for substrings that do not cross a word boundary. Keyword
// search splits each of its tokens with this same function before
// consulting the filter, so a token containing punctuation is never
// rejected as a whole.
func tokenizeForBloom(name string) []string {
	name = strings.ToLower(name)
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()

	var out []string
	for _, w := range words {
		runes := []rune(w)
		for start := 0; start < len(runes); start++ {
			for end := start + minTokenLength; end <= len(runes); end++ {
				out = append(out, string(runes[start:end]))
			}
		}
	}
	return out
}
