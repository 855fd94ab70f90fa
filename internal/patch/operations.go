package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"kanban/api/internal/store"
)

var knownOps = map[string]bool{
	"add":     true,
	"remove":  true,
	"replace": true,
	"move":    true,
	"copy":    true,
	"test":    true,
}

// operations handles the two productive shapes of an operation list:
// replace /title and remove /columns/<index>. Every op is checked before
// any of them is interpreted.
func (n *normalizer) operations(ops []Operation, snap store.BoardSnapshot) (ChangeSet, error) {
	for i, op := range ops {
		at := "/" + strconv.Itoa(i)
		if !knownOps[op.Op] {
			n.verr.addf(at+"/op", "unknown operation %q", op.Op)
			continue
		}
		if !strings.HasPrefix(op.Path, "/") {
			n.verr.add(at+"/path", "must be a JSON Pointer")
		}
	}
	if len(n.verr.Errors) > 0 {
		return ChangeSet{}, nil
	}

	var cs ChangeSet
	removed := make(map[string]bool)
	for i, op := range ops {
		at := "/" + strconv.Itoa(i)
		segments := splitPointer(op.Path)
		switch {
		case op.Op == "replace" && len(segments) == 1 && segments[0] == "title":
			var title string
			if err := json.Unmarshal(op.Value, &title); err != nil || strings.TrimSpace(title) == "" {
				n.verr.add(at+"/value", "must be a non-empty string")
				continue
			}
			if cs.Board == nil {
				cs.Board = &store.BoardFields{}
			}
			cs.Board.Title = &title
		case op.Op == "remove" && len(segments) == 2 && segments[0] == "columns":
			index, ok := parseIndex(segments[1])
			if !ok {
				n.verr.add(at+"/path", "column index must be a non-negative integer")
				continue
			}
			column, ok := snap.ColumnIndex(index)
			if !ok {
				n.verr.addf(at+"/path", "no column at index %d", index)
				continue
			}
			if removed[column.ID] {
				continue
			}
			removed[column.ID] = true
			cs.Columns = append(cs.Columns, Op[store.ColumnFields]{Kind: KindDelete, ID: column.ID})
		default:
			n.verr.add(at, fmt.Sprintf("unsupported operation %s %s", op.Op, op.Path))
		}
	}
	return cs, nil
}

func splitPointer(path string) []string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, part := range parts {
		parts[i] = unescapePointer(part)
	}
	return parts
}

// parseIndex accepts RFC 6901 array indices: digits without leading zeros.
func parseIndex(segment string) (int, bool) {
	if segment == "" || (len(segment) > 1 && segment[0] == '0') {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	index, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return index, true
}
