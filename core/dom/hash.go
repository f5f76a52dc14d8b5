package dom

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"github.com/FocuswithJustin/folio/core/cache"
	"github.com/FocuswithJustin/folio/core/cas"
)

type hashKey struct {
	doc  uint64
	node NodeID
	gen  uint64
	fmt  bool
}

var hashCache = cache.NewLRUCache[hashKey, string](cache.Config{MaxSize: 8192})

// HashOptions tune what Hash covers.
type HashOptions struct {
	// IgnoreFormatting leaves direct formatting out of the hash.
	IgnoreFormatting bool
}

// Hash returns a BLAKE3 digest of the subtree at node covering types,
// text, payload and formatting. Results are memoised per document
// generation.
func (d *Document) Hash(node NodeID) string {
	return d.HashWith(node, HashOptions{})
}

// HashWith is Hash with options.
func (d *Document) HashWith(node NodeID, opts HashOptions) string {
	key := hashKey{doc: d.key, node: node, gen: d.gen, fmt: !opts.IgnoreFormatting}
	sum, _ := cache.GetOrCompute(hashCache, key, func() (string, error) {
		h := cas.NewBlake3()
		d.hashInto(h, node, opts)
		return hex.EncodeToString(h.Sum(nil)), nil
	})
	return sum
}

func (d *Document) hashInto(h hash.Hash, n NodeID, opts HashOptions) {
	r := d.rec(n)
	if r == nil {
		return
	}
	writeString(h, string(r.typ))
	writeString(h, r.text)
	a := r.attrs
	writeString(h, string(a.Break))
	writeString(h, string(a.HeaderFooter))
	writeString(h, a.FieldCode)
	writeString(h, a.FieldResult)
	writeString(h, a.Name)
	writeString(h, a.Media)
	if !opts.IgnoreFormatting {
		f := r.format
		writeString(h, f.Style)
		writeString(h, f.Font)
		writeFloat(h, f.Size)
		var flags byte
		for i, b := range []bool{f.Bold, f.Italic, f.Underline, f.Strike} {
			if b {
				flags |= 1 << i
			}
		}
		h.Write([]byte{flags})
		writeString(h, f.Color)
		writeString(h, f.Highlight)
		writeString(h, string(f.Align))
		writeFloat(h, float64(f.ListID))
		writeFloat(h, float64(f.ListLevel))
		writeFloat(h, f.SpaceAfter)
	}
	writeFloat(h, float64(len(r.children)))
	for _, c := range r.children {
		d.hashInto(h, c, opts)
	}
}

func writeString(h hash.Hash, s string) {
	var n [binary.MaxVarintLen64]byte
	h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	h.Write([]byte(s))
}

func writeFloat(h hash.Hash, f float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	h.Write(b[:])
}
