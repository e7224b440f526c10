package qa

import (
	"fmt"
	"testing"

	"github.com/hyperjump/docqa/internal/models"
)

func BenchmarkFuse(b *testing.B) {
	kw := make([]*models.SearchResult, 0, 100)
	sem := make([]*models.SearchResult, 0, 100)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("chunk-%d", i)
		kw = append(kw, hit(id, i, float64(i)/100))
		sem = append(sem, hit(id, i, float64(100-i)/100))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fuse(kw, sem, 0.5, 0.5)
	}
}
