package query

import "fmt"

// Entity is a stored object in its raw, schemaless form
type Entity struct {
	ID         string         `bson:"id"`
	Properties map[string]any `bson:"properties"`
	TTL        float64        `bson:"ttl,omitempty"`
}

func NewEntity(id string, properties map[string]any) Entity {
	if properties == nil {
		properties = map[string]any{}
	}
	return Entity{ID: id, Properties: properties}
}

// Expire attaches a time to live in seconds. Values that are not positive are ignored.
func (e *Entity) Expire(ttl float64) {
	if ttl > 0 {
		e.TTL = ttl
	}
}

func (e Entity) String() string {
	return fmt.Sprintf("Entity<%s>: %v", e.ID, e.Properties)
}
