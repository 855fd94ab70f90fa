package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateBuilderStatement(t *testing.T) {
	var b updateBuilder
	b.set("title", "Doing")
	b.set("sort_order", 2)

	query, args := b.statement("board_columns", "col-1")
	assert.Equal(t, "UPDATE board_columns SET title=$1, sort_order=$2, updated_at=NOW() WHERE id=$3", query)
	assert.Equal(t, []any{"Doing", 2, "col-1"}, args)

	b.noTimestamp = true
	query, _ = b.statement("board_columns", "col-1")
	assert.Equal(t, "UPDATE board_columns SET title=$1, sort_order=$2 WHERE id=$3", query)
	assert.Len(t, b.sets, 2)
}
