// File: services/payment/pagination.go
package payment

// Pagination is one offset/limit window over a larger result set.
// TotalCount is the number of matching records; MaxCount the number of
// records the source holds overall, when known.
type Pagination[T any] struct {
	Items      []T   `json:"items"`
	Offset     int64 `json:"offset"`
	Limit      int64 `json:"limit"`
	TotalCount int64 `json:"total_count"`
	MaxCount   int64 `json:"max_count"`
}

// pageSource fetches one window from a single underlying source and reports
// that source's total.
type pageSource[T any] func(offset, limit int64) ([]T, int64, error)

// multiplexPages applies a single global offset/limit window across several
// sources, in source order. Each source contributes its records contiguously;
// the window slides over the concatenation without materializing it.
func multiplexPages[T any](offset, limit int64, sources []pageSource[T]) (Pagination[T], error) {
	page := Pagination[T]{Offset: offset, Limit: limit}

	remainingOffset := offset
	for _, source := range sources {
		remainingLimit := limit - int64(len(page.Items))

		var (
			items []T
			total int64
			err   error
		)
		if remainingLimit > 0 {
			items, total, err = source(remainingOffset, remainingLimit)
		} else {
			// Window already filled; still count the source's records.
			_, total, err = source(0, 0)
		}
		if err != nil {
			return Pagination[T]{}, err
		}

		page.Items = append(page.Items, items...)
		page.TotalCount += total
		page.MaxCount += total

		consumed := remainingOffset
		if consumed > total {
			consumed = total
		}
		remainingOffset -= consumed
	}
	return page, nil
}
