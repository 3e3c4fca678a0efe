package adapter

import "github.com/google/uuid"

// UUIDv5 derives a stable entry.author_id from an adapter-chosen namespace
// and a raw identity. It is the only legal path for deriving an author id:
// the same (namespace, rawID) always produces the same id, across runs and
// across processes, since it is a pure function of its inputs with no
// process-local state.
func UUIDv5(namespace, rawID string) string {
	ns := uuid.NewSHA1(uuid.Nil, []byte(namespace))
	return uuid.NewSHA1(ns, []byte(rawID)).String()
}
