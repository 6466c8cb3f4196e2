package query

import (
	"fmt"

	"github.com/diwise/meduza/pkg/meduza/errors"
)

const DefaultLimit int = 100

type Ordering struct {
	By  string `bson:"by"`
	Asc bool   `bson:"asc"`
}

func Asc(property string) *Ordering {
	return &Ordering{By: property, Asc: true}
}

func Desc(property string) *Ordering {
	return &Ordering{By: property, Asc: false}
}

type Paging struct {
	Offset int `bson:"offset"`
	Limit  int `bson:"limit"`
}

func DefaultPaging() Paging {
	return Paging{Offset: 0, Limit: DefaultLimit}
}

// NewPaging rejects a negative offset, a non positive limit and an offset that is not below the limit
func NewPaging(offset, limit int) (Paging, error) {
	if offset >= limit || offset < 0 || limit <= 0 {
		return Paging{}, errors.NewInvalidQueryError(fmt.Sprintf("invalid offset/limit: %d-%d", offset, limit))
	}

	return Paging{Offset: offset, Limit: limit}, nil
}
