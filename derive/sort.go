package derive

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
)

// orderFromToken builds a sort key from an OrderBy fragment such as
// "AgeDesc". Without an Asc or Desc suffix the direction is ascending.
func orderFromToken(method, text string, meta mapping.Metadata) (core.Order, error) {
	dir := core.Asc
	switch {
	case strings.HasSuffix(text, "Desc"):
		text = strings.TrimSuffix(text, "Desc")
		dir = core.Desc
	case strings.HasSuffix(text, "Asc"):
		text = strings.TrimSuffix(text, "Asc")
	}
	if text == "" {
		return core.Order{}, fmt.Errorf("%w: %s: OrderBy without a field name", core.ErrDynamicQuery, method)
	}
	return core.Order{Key: meta.ResolveStorageKey(LowerFirst(text)), Direction: dir}, nil
}

// applyTail scans the arguments left after predicate binding. Sort
// descriptors append to the query's sort, page descriptors replace its
// window; everything else is ignored.
func applyTail(q *core.Query, method string, args []any, logger *slog.Logger) {
	for i, arg := range args {
		switch v := arg.(type) {
		case core.Sort:
			q.Sort = append(q.Sort, v...)
		case []core.Order:
			q.Sort = append(q.Sort, v...)
		case core.Order:
			q.Sort = append(q.Sort, v)
		case core.Page:
			q.Page = v
		case *core.Page:
			if v != nil {
				q.Page = *v
			}
		case core.NoPaging:
			// explicit request for no window
		default:
			logger.Debug("ignoring trailing argument",
				"method", method,
				"position", i,
				"type", fmt.Sprintf("%T", arg))
		}
	}
}
