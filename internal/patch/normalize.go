package patch

import (
	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

// Normalize validates payload and resolves it against snap into a
// ChangeSet. Operation-list paths are resolved positionally against snap;
// merge entries are resolved by id. A *ValidationError means nothing may be
// written.
func Normalize(payload Payload, snap store.BoardSnapshot) (ChangeSet, error) {
	n := &normalizer{newID: func() string { return util.NewID("") }}
	return n.normalize(payload, snap)
}

type normalizer struct {
	newID func() string
	verr  ValidationError
}

func (n *normalizer) normalize(payload Payload, snap store.BoardSnapshot) (ChangeSet, error) {
	var (
		cs  ChangeSet
		err error
	)
	switch payload.Format {
	case FormatOperations:
		cs, err = n.operations(payload.Operations, snap)
	case FormatMerge:
		cs, err = n.merge(payload.raw)
	default:
		return ChangeSet{}, invalid("", "payload must be a JSON array or object")
	}
	if err != nil {
		return ChangeSet{}, err
	}
	if err := n.verr.orNil(); err != nil {
		return ChangeSet{}, err
	}
	return cs, nil
}
