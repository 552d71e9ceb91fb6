package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceSource(records []int) pageSource[int] {
	return func(offset, limit int64) ([]int, int64, error) {
		total := int64(len(records))
		if offset >= total || limit == 0 {
			return nil, total, nil
		}
		end := offset + limit
		if end > total {
			end = total
		}
		return records[offset:end], total, nil
	}
}

func TestMultiplexPages(t *testing.T) {
	cases := []struct {
		name      string
		sources   [][]int
		offset    int64
		limit     int64
		wantItems []int
		wantTotal int64
	}{
		{
			name:      "window inside first source",
			sources:   [][]int{{1, 2, 3}, {4, 5}},
			offset:    0,
			limit:     2,
			wantItems: []int{1, 2},
			wantTotal: 5,
		},
		{
			name:      "window spans two sources",
			sources:   [][]int{{1, 2, 3}, {4, 5, 6, 7}},
			offset:    2,
			limit:     4,
			wantItems: []int{3, 4, 5, 6},
			wantTotal: 7,
		},
		{
			name:      "offset past first source",
			sources:   [][]int{{1, 2, 3}, {4, 5, 6, 7}},
			offset:    5,
			limit:     10,
			wantItems: []int{6, 7},
			wantTotal: 7,
		},
		{
			name:      "later sources still counted after window fills",
			sources:   [][]int{{1, 2, 3}, {4, 5}, {6, 7, 8}},
			offset:    0,
			limit:     3,
			wantItems: []int{1, 2, 3},
			wantTotal: 8,
		},
		{
			name:      "offset past everything",
			sources:   [][]int{{1, 2}, {3}},
			offset:    10,
			limit:     5,
			wantItems: nil,
			wantTotal: 3,
		},
		{
			name:      "empty source in the middle",
			sources:   [][]int{{1}, {}, {2, 3}},
			offset:    0,
			limit:     10,
			wantItems: []int{1, 2, 3},
			wantTotal: 3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sources []pageSource[int]
			for _, records := range tc.sources {
				sources = append(sources, sliceSource(records))
			}

			page, err := multiplexPages(tc.offset, tc.limit, sources)
			require.NoError(t, err)
			assert.Equal(t, tc.wantItems, page.Items)
			assert.Equal(t, tc.wantTotal, page.TotalCount)
			assert.Equal(t, tc.offset, page.Offset)
			assert.Equal(t, tc.limit, page.Limit)
		})
	}
}

func TestMultiplexPagesSourceError(t *testing.T) {
	broken := pageSource[int](func(offset, limit int64) ([]int, int64, error) {
		return nil, 0, errors.New("source exploded")
	})

	_, err := multiplexPages(0, 5, []pageSource[int]{sliceSource([]int{1}), broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source exploded")
}
