package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/coregx/dbfactory/internal/sqlbuilder"
)

func BenchmarkInsertSQL(b *testing.B) {
	builder := sqlbuilder.New().Table("items")
	for i := 0; i < b.N; i++ {
		builder.Reset().Numeric("id", i).String("name", "bench").Numeric("age", 30)
		_ = builder.Insert().SQL()
	}
}

func BenchmarkInsertOrUpdate(b *testing.B) {
	builder := sqlbuilder.New().Table("items")
	for i := 0; i < b.N; i++ {
		builder.Reset().Numeric("id", i).String("name", "bench").Numeric("age", 30)
		_ = builder.InsertOrUpdate("id")
	}
}

// BenchmarkBatchInsert_100rows benchmarks a 100-row INSERT executed as one batch.
func BenchmarkBatchInsert_100rows(b *testing.B) {
	db := setupBenchDB(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := sqlbuilder.NewBatchInsert("items")
		for j := 0; j < 100; j++ {
			batch.Numeric("id", j+1).String("name", fmt.Sprintf("User %d", j)).Numeric("age", 20+j)
		}
		if !db.BatchUpdate(ctx, "bench", []string{batch.SQL(), "DELETE FROM items"}) {
			b.Fatal("batch insert failed")
		}
	}
}
