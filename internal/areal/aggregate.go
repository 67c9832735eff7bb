package areal

// Result maps each target field to its area-weighted sum.
type Result map[string]float64

// Aggregate sums value*ratio over fragments for each target. fields is the
// schema the fragment values are aligned with; targets not in it are
// omitted. Nil targets means every field. With no fragments every present
// target is reported as 0.
func Aggregate(fields []string, fragments []Fragment, targets []string) Result {
	if targets == nil {
		targets = fields
	}

	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		pos[f] = i
	}

	out := make(Result, len(targets))
	for _, t := range targets {
		i, ok := pos[t]
		if !ok {
			continue
		}
		var sum float64
		for _, fr := range fragments {
			if i < len(fr.Values) {
				sum += fr.Values[i] * fr.Ratio
			}
		}
		out[t] = sum
	}
	return out
}

// Stats intersects q with d and aggregates every dataset field.
func Stats(d *Dataset, q *Query) (Result, []Fragment, error) {
	frags, err := Intersect(d, q)
	if err != nil {
		return nil, nil, err
	}
	return Aggregate(d.Fields, frags, nil), frags, nil
}
