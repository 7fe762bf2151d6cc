package sqlbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchInsert(t *testing.T) {
	b := NewBatchInsert("t")
	for i := 1; i <= 3; i++ {
		b.Numeric("id", i).String("name", "n"+string(rune('0'+i)))
	}

	assert.Equal(t, 3, b.Rows())
	assert.Equal(t,
		"INSERT INTO t(id, name) VALUES(1, 'n1'), (2, 'n2'), (3, 'n3')",
		b.SQL())
}

func TestBatchInsert_SingleRow(t *testing.T) {
	b := NewBatchInsert("t").Numeric("a", 1).Numeric("b", 2)
	assert.Equal(t, 1, b.Rows())
	assert.Equal(t, "INSERT INTO t(a, b) VALUES(1, 2)", b.SQL())
}

func TestBatchInsert_Empty(t *testing.T) {
	b := NewBatchInsert("t")
	assert.Equal(t, 0, b.Rows())
	assert.Equal(t, "", b.SQL())
}

func TestBatchInsert_Reset(t *testing.T) {
	b := NewBatchInsert("t").Numeric("a", 1).Numeric("a", 2)
	assert.Equal(t, "INSERT INTO t(a) VALUES(1), (2)", b.SQL())

	b.Reset().Table("u").String("x", "y")
	assert.Equal(t, "INSERT INTO u(x) VALUES('y')", b.SQL())
}
