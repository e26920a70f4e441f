package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name       string
		page, size int
		wantPage   int
		wantSize   int
		wantOffset int
	}{
		{"defaults", 0, 0, 1, 20, 0},
		{"second page", 2, 10, 2, 10, 10},
		{"clamped size", 3, 500, 3, 100, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantSize, p.Limit())
			assert.Equal(t, tt.wantOffset, p.Offset())
		})
	}
}

func TestNewPagedResultTotalPages(t *testing.T) {
	r := NewPagedResult([]int{1, 2}, 21, NewPagination(1, 10))
	assert.Equal(t, 3, r.TotalPages)

	r = NewPagedResult([]int{}, 0, NewPagination(1, 10))
	assert.Equal(t, 0, r.TotalPages)
}
