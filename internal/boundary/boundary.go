// Package boundary loads polygonal statistical units (census areas,
// administrative districts) keyed by a unique code.
package boundary

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Unit is one keyed polygon or multipolygon.
type Unit struct {
	Key  string
	Geom geom.T
}

// Store is a keyed polygonal partition. SRID is 0 when the source carried no
// coordinate reference system.
type Store struct {
	SRID     int
	KeyField string
	Units    []Unit
}

// Len returns the number of units.
func (s *Store) Len() int { return len(s.Units) }

// builder accumulates units while enforcing key uniqueness.
type builder struct {
	store   *Store
	seen    map[string]struct{}
	skipped int
}

func newBuilder(keyField string) *builder {
	return &builder{
		store: &Store{KeyField: keyField},
		seen:  make(map[string]struct{}),
	}
}

// add appends a unit. Non-areal or empty geometries are counted and skipped;
// a repeated key is an error.
func (b *builder) add(key string, g geom.T) error {
	key = strings.TrimSpace(key)
	if key == "" || !isAreal(g) {
		b.skipped++
		return nil
	}
	if _, dup := b.seen[key]; dup {
		return eris.Errorf("boundary: duplicate key %q in field %s", key, b.store.KeyField)
	}
	b.seen[key] = struct{}{}
	b.store.Units = append(b.store.Units, Unit{Key: key, Geom: g})
	return nil
}

func isAreal(g geom.T) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.NumLinearRings() > 0
	case *geom.MultiPolygon:
		return t.NumPolygons() > 0
	default:
		return false
	}
}

// keyString renders a property value as a join key.
func keyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case bool:
		return strconv.FormatBool(k)
	default:
		return ""
	}
}
