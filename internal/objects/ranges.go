package objects

import (
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// CorrectV4Range widens a range that was advertised without its network
// or broadcast address. A start ending in .1 becomes .0; otherwise an end
// ending in .254 becomes .255. At most one correction is applied and equal
// endpoints are returned unchanged.
func CorrectV4Range(start, end netip.Addr) (netip.Addr, netip.Addr) {
	if start == end {
		return start, end
	}

	s := start.As4()
	if s[3] == 1 {
		s[3] = 0
		return netip.AddrFrom4(s), end
	}

	e := end.As4()
	if e[3] == 254 {
		e[3] = 255
		return start, netip.AddrFrom4(e)
	}
	return start, end
}

// SummarizeRange returns the minimal list of aligned prefixes covering the
// inclusive range [start, end], in ascending order.
func SummarizeRange(start, end netip.Addr) ([]netip.Prefix, error) {
	if !start.Is4() || !end.Is4() {
		return nil, fmt.Errorf("range %s-%s: only IPv4 ranges are supported", start, end)
	}
	if end.Less(start) {
		return nil, fmt.Errorf("range %s-%s: start is after end", start, end)
	}
	return netipx.IPRangeFrom(start, end).Prefixes(), nil
}

// RangeAddresses corrects and summarizes a textual range and materializes
// one synthetic network address per block, named RR_<network>_<length>.
func RangeAddresses(start, end string) ([]*Address, error) {
	s, err := netip.ParseAddr(start)
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", start, err)
	}
	e, err := netip.ParseAddr(end)
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", end, err)
	}
	if !s.Is4() || !e.Is4() {
		return nil, fmt.Errorf("range %s-%s: only IPv4 ranges are supported", start, end)
	}

	s, e = CorrectV4Range(s, e)
	prefixes, err := SummarizeRange(s, e)
	if err != nil {
		return nil, err
	}

	out := make([]*Address, 0, len(prefixes))
	for _, p := range prefixes {
		name := fmt.Sprintf("RR_%s_%d", p.Addr(), p.Bits())
		out = append(out, NewSyntheticAddress("manual", name, p.String(), "network"))
	}
	return out, nil
}
