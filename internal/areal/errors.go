package areal

import "fmt"

// GeometryError reports a query feature whose geometry cannot be coerced to
// a single polygon. Index is the feature position, or -1 when the document
// itself could not be decoded.
type GeometryError struct {
	Index  int
	Type   string
	Reason string
}

func (e *GeometryError) Error() string {
	if e.Index < 0 {
		return "areal: invalid query boundary: " + e.Reason
	}
	return fmt.Sprintf("areal: query feature %d (%s): %s", e.Index, e.Type, e.Reason)
}

// CRSMismatchError reports query and dataset geometries in different
// coordinate systems at the point of overlap. It indicates a defect.
type CRSMismatchError struct {
	Query   int
	Dataset int
}

func (e *CRSMismatchError) Error() string {
	return fmt.Sprintf("areal: query is in EPSG:%d but dataset is in EPSG:%d", e.Query, e.Dataset)
}
