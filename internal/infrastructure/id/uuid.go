package id

import "github.com/google/uuid"

type UUIDGenerator struct {
	prefix string
}

// NewUUIDGenerator returns a generator of random v4 ids, each prefixed with prefix.
func NewUUIDGenerator(prefix string) UUIDGenerator {
	return UUIDGenerator{prefix: prefix}
}

func (g UUIDGenerator) NewID() string {
	return g.prefix + uuid.NewString()
}
