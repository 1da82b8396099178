package roa

import (
	"bytes"
	"sort"

	"github.com/bgpfix/rtrd/internal/pdu"
)

// PrefixSet is an ordered, deduplicated, versioned set of prefix
// assertions (spec §3.2): the in-memory form of one AXFR snapshot.
type PrefixSet struct {
	Serial     uint32
	Assertions []pdu.Prefix
}

// Canonicalize sorts assertions by the lexicographic order of their
// wire encoding and removes exact duplicates (spec §4.1.2). It mutates
// and returns the set's Assertions slice.
func Canonicalize(assertions []pdu.Prefix) []pdu.Prefix {
	sort.Slice(assertions, func(i, j int) bool {
		return bytes.Compare(assertions[i].Encode(), assertions[j].Encode()) < 0
	})

	out := assertions[:0]
	for i, a := range assertions {
		if i > 0 && bytes.Equal(a.Encode(), assertions[i-1].Encode()) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Diff computes the delta old -> new as a merge-walk (spec §4.1.3): an
// O(|old|+|new|) single pass over two canonically-ordered prefix sets,
// emitting withdrawals for entries only in old and announcements for
// entries only in new. Output order follows the walk, not a global
// sort — callers replay it as a stream, they do not re-sort it.
func Diff(old, new []pdu.Prefix) []pdu.Prefix {
	var out []pdu.Prefix
	i, j := 0, 0
	for i < len(old) && j < len(new) {
		switch bytes.Compare(old[i].Encode(), new[j].Encode()) {
		case -1:
			out = append(out, withAnnounce(old[i], false))
			i++
		case 1:
			out = append(out, withAnnounce(new[j], true))
			j++
		default:
			i++
			j++
		}
	}
	for ; i < len(old); i++ {
		out = append(out, withAnnounce(old[i], false))
	}
	for ; j < len(new); j++ {
		out = append(out, withAnnounce(new[j], true))
	}
	return out
}

// withAnnounce returns a shallow copy of p with the announce flag set
// as requested, leaving the canonical snapshot copy untouched.
func withAnnounce(p pdu.Prefix, announce bool) pdu.Prefix {
	switch v := p.(type) {
	case *pdu.IPv4Prefix:
		cp := *v
		cp.SetAnnounce(announce)
		return &cp
	case *pdu.IPv6Prefix:
		cp := *v
		cp.SetAnnounce(announce)
		return &cp
	default:
		panic("roa: unknown prefix kind")
	}
}
