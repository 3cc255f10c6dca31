package storage

import (
	"encoding/binary"
	"net/netip"
)

// Span selection helpers shared by the backends. Overlapping stored ranges
// are legal; lookups must pick the containing range covering the fewest
// addresses, so spans are compared as 128-bit widths with v4 addresses in
// their mapped form.

// Covers reports whether addr lies inside the inclusive range [start, end].
// All three must be in the same (unmapped) form.
func Covers(start, end, addr netip.Addr) bool {
	return start.Compare(addr) <= 0 && addr.Compare(end) <= 0
}

// SpanLess reports whether range a covers strictly fewer addresses than
// range b.
func SpanLess(aStart, aEnd, bStart, bEnd netip.Addr) bool {
	ahi, alo := spanOf(aStart, aEnd)
	bhi, blo := spanOf(bStart, bEnd)
	if ahi != bhi {
		return ahi < bhi
	}
	return alo < blo
}

func spanOf(start, end netip.Addr) (hi, lo uint64) {
	shi, slo := addrWords(start)
	ehi, elo := addrWords(end)
	hi = ehi - shi
	lo = elo - slo
	if elo < slo {
		hi--
	}
	return hi, lo
}

func addrWords(a netip.Addr) (hi, lo uint64) {
	b := a.As16()
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])
}
