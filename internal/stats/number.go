package stats

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// thousandsRe matches comma-grouped integers such as 1,234 or 12,345.67.
	thousandsRe = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	// decimalRe admits plain decimal and exponent forms only; ParseFloat
	// alone would also take hex floats and underscore separators.
	decimalRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
)

// Number coerces a statistic cell to float64. Blank cells, census
// suppression markers and anything unparseable count as 0, as do NaN and
// infinities. Comma thousands separators are accepted only in 3-digit groups,
// so a decimal comma such as "12,5" is not mistaken for 125.
func Number(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if thousandsRe.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	if !decimalRe.MatchString(s) {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
