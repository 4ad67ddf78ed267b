package market

import (
	"regexp"
	"strconv"
	"strings"
)

// Order is one resolved (item, quantity) line of a direct buy/sell.
type Order struct {
	Code     string `json:"code"`
	Quantity int64  `json:"quantity"`
}

// WeightedOrder is one resolved (item, weight) line of a ratio buy.
type WeightedOrder struct {
	Code   string `json:"code"`
	Weight int64  `json:"weight"`
}

var (
	ratioSepRE  = regexp.MustCompile(`[:;]`)
	pairSepRE   = regexp.MustCompile(`[,|]`)
	identFirst  = regexp.MustCompile(`^(.+?)\s+(\d+)$`)
	numberFirst = regexp.MustCompile(`^(\d+)\s+(.+)$`)
	spaceRE     = regexp.MustCompile(`\s+`)
)

func normalizeIdent(s string) string {
	return strings.ToUpper(spaceRE.ReplaceAllString(strings.TrimSpace(s), " "))
}

// IsRatioOrder reports whether a raw order string uses ratio separators.
// Mixing ':'/';' with ','/'|' in one string is rejected.
func IsRatioOrder(raw string) (bool, error) {
	s := strings.TrimSpace(raw)
	hasRatio := ratioSepRE.MatchString(s)
	hasPair := pairSepRE.MatchString(s)
	if hasRatio && hasPair {
		return false, validationf("cannot mix ':' or ';' with ',' or '|' in the same order")
	}
	return hasRatio, nil
}

// ParseOrders parses "A 5, B 10" style direct orders. Segments are split on
// comma or pipe; each segment is "<item> <qty>" or "<qty> <item>". Items
// resolve by code or configured name.
func ParseOrders(cfg *Config, raw string) ([]Order, error) {
	segments, err := splitSegments(raw, pairSepRE)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(segments))
	for _, seg := range segments {
		ident, n, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		if n < 1 || n > MaxItemUnits {
			return nil, validationf("quantity out of range in %q (1..%d)", seg, MaxItemUnits)
		}
		code, ok := cfg.ResolveItem(ident)
		if !ok {
			return nil, validationf("unknown item %q", ident)
		}
		out = append(out, Order{Code: code, Quantity: n})
	}
	return out, nil
}

// ParseRatioOrders parses "A 1:B 2:C 1" style weighted orders, split on
// colon or semicolon. Weights must be positive.
func ParseRatioOrders(cfg *Config, raw string) ([]WeightedOrder, error) {
	segments, err := splitSegments(raw, ratioSepRE)
	if err != nil {
		return nil, err
	}
	out := make([]WeightedOrder, 0, len(segments))
	for _, seg := range segments {
		ident, w, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		if w < 1 {
			return nil, validationf("weight must be >= 1 in %q", seg)
		}
		code, ok := cfg.ResolveItem(ident)
		if !ok {
			return nil, validationf("unknown item %q", ident)
		}
		out = append(out, WeightedOrder{Code: code, Weight: w})
	}
	return out, nil
}

func splitSegments(raw string, sep *regexp.Regexp) ([]string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, validationf("no orders found")
	}
	var out []string
	for _, seg := range sep.Split(s, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return nil, validationf("no valid order segments")
	}
	return out, nil
}

func parseSegment(seg string) (ident string, n int64, err error) {
	if m := identFirst.FindStringSubmatch(seg); m != nil {
		n, err = strconv.ParseInt(m[2], 10, 64)
		return strings.TrimSpace(m[1]), n, err
	}
	if m := numberFirst.FindStringSubmatch(seg); m != nil {
		n, err = strconv.ParseInt(m[1], 10, 64)
		return strings.TrimSpace(m[2]), n, err
	}
	return "", 0, validationf("cannot parse segment %q (use 'A 10' or '10 A')", seg)
}
