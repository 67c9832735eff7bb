package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/areal/internal/registry"
)

// Outcome reports the resolution of one dataset input.
type Outcome struct {
	Dataset string `json:"dataset"`
	Role    string `json:"role"`
	Path    string `json:"path"`
	Error   string `json:"error,omitempty"`
}

// FetchAll resolves every file-backed input of specs, downloading what is
// missing (or everything with a URL when force is set). PostGIS inputs are
// skipped. One failing input does not stop the others; the first error is
// returned after all inputs were attempted.
func (l *Loader) FetchAll(ctx context.Context, specs []registry.Spec, force bool) ([]Outcome, error) {
	var (
		out      []Outcome
		firstErr error
	)
	for _, spec := range specs {
		for _, in := range []struct {
			role string
			src  registry.SourceSpec
		}{
			{RoleBoundary, spec.Boundary},
			{RoleStatistics, spec.Statistics},
		} {
			if isPostGIS(in.src.Path) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return out, eris.Wrap(err, "source: fetch cancelled")
			}

			o := Outcome{Dataset: spec.ID, Role: in.role}
			p, err := l.Resolve(ctx, spec.ID, in.role, in.src, force && in.src.URL != "")
			if err != nil {
				o.Error = err.Error()
				if firstErr == nil {
					firstErr = err
				}
			}
			o.Path = p
			out = append(out, o)
		}
	}
	return out, firstErr
}
