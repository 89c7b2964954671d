package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   PageRequest
		want PageRequest
	}{
		{"zero value", PageRequest{}, PageRequest{Page: 1, PageSize: 10}},
		{"negative page", PageRequest{Page: -3, PageSize: 5}, PageRequest{Page: 1, PageSize: 5}},
		{"too large", PageRequest{Page: 2, PageSize: 1000}, PageRequest{Page: 2, PageSize: MaxPageSize}},
		{"kept", PageRequest{Page: 4, PageSize: 25}, PageRequest{Page: 4, PageSize: 25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize(10))
		})
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, PageRequest{Page: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, PageRequest{Page: 3, PageSize: 10}.Offset())
}

func TestNewPageResult_EmptyFirstPage(t *testing.T) {
	page, err := NewPageResult[int](PageRequest{Page: 1, PageSize: 10}, nil, 0)
	require.NoError(t, err)
	assert.NotNil(t, page.Results)
	assert.Empty(t, page.Results)
	assert.False(t, page.HasNext())
	assert.False(t, page.HasPrevious())
}

func TestNewPageResult_PastEnd(t *testing.T) {
	_, err := NewPageResult(PageRequest{Page: 3, PageSize: 10}, []int{}, 20)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestWithLinks(t *testing.T) {
	base, err := url.Parse("http://localhost:8080/posts/?page=2&search=go")
	require.NoError(t, err)

	page, err := NewPageResult(PageRequest{Page: 2, PageSize: 2}, []int{3, 4}, 5)
	require.NoError(t, err)
	page.WithLinks(base)

	require.NotNil(t, page.Next)
	require.NotNil(t, page.Previous)
	assert.Equal(t, "http://localhost:8080/posts/?page=3&search=go", *page.Next)
	assert.Equal(t, "http://localhost:8080/posts/?search=go", *page.Previous)
}

func TestMap(t *testing.T) {
	page, err := NewPageResult(PageRequest{Page: 1, PageSize: 2}, []int{1, 2}, 3)
	require.NoError(t, err)

	mapped := Map(page, func(n int) string { return string(rune('a' + n - 1)) })
	assert.Equal(t, []string{"a", "b"}, mapped.Results)
	assert.Equal(t, int64(3), mapped.Count)
	assert.True(t, mapped.HasNext())
}
