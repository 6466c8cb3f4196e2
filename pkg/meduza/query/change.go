package query

import (
	"fmt"

	"github.com/diwise/meduza/pkg/meduza/errors"
)

type ChangeOp string

const (
	OpSet       ChangeOp = "SET"
	OpDelete    ChangeOp = "DEL"
	OpIncrement ChangeOp = "INCR"
	OpSetAdd    ChangeOp = "SADD"
	OpSetDelete ChangeOp = "SDEL"
	OpMapSet    ChangeOp = "MSET"
	OpMapDelete ChangeOp = "MDEL"
	OpExpire    ChangeOp = "EXP"
)

// Change is a single mutation sent with an update query
type Change struct {
	Property string   `bson:"property"`
	Op       ChangeOp `bson:"op"`
	Value    any      `bson:"value"`
}

// NewChange only accepts SET and INCR, use the factory functions for the other operations
func NewChange(property string, op ChangeOp, value any) (Change, error) {
	if op != OpSet && op != OpIncrement {
		return Change{}, errors.NewInvalidQueryError(fmt.Sprintf("op %s not supported", op))
	}

	return Change{Property: property, Op: op, Value: value}, nil
}

func Set(property string, value any) Change {
	return Change{Property: property, Op: OpSet, Value: value}
}

func Increment(property string, delta any) Change {
	return Change{Property: property, Op: OpIncrement, Value: delta}
}

func Delete(property string) Change {
	return Change{Property: property, Op: OpDelete}
}

func SetAdd(property string, values ...any) Change {
	return Change{Property: property, Op: OpSetAdd, Value: values}
}

func SetDelete(property string, values ...any) Change {
	return Change{Property: property, Op: OpSetDelete, Value: values}
}

func MapSet(property, key string, value any) Change {
	return Change{Property: property, Op: OpMapSet, Value: map[string]any{key: value}}
}

func MapDelete(property string, keys ...string) Change {
	return Change{Property: property, Op: OpMapDelete, Value: keys}
}

// Expire sets a time to live in seconds on every entity matched by the update
func Expire(ttl float64) Change {
	return Change{Property: "", Op: OpExpire, Value: ttl}
}
