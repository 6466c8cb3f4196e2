package meduza

import (
	"context"

	"github.com/diwise/meduza/pkg/meduza/query"
)

// SelectAs runs Select into a fresh slice of T
func SelectAs[T any](ctx context.Context, s Session, filters query.FilterSet, options ...SelectOption) ([]T, int, error) {
	result := []T{}

	total, err := s.Select(ctx, &result, filters, options...)
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// SelectAll pages through every entity matching filters, pageSize at a time,
// and calls fn for each of them. Iteration stops at the first error from fn.
func SelectAll[T any](ctx context.Context, s Session, filters query.FilterSet, pageSize int, fn func(T) error) error {
	if pageSize <= 0 {
		pageSize = query.DefaultLimit
	}

	offset := 0

	for {
		page, total, err := SelectAs[T](ctx, s, filters, Page(offset, offset+pageSize))
		if err != nil {
			return err
		}

		for _, item := range page {
			if err = fn(item); err != nil {
				return err
			}
		}

		offset += len(page)

		if len(page) == 0 || offset >= total {
			return nil
		}
	}
}
