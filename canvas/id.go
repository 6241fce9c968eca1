package canvas

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TempIDPrefix marks a client-allocated placeholder ID submitted in a
// bulk patch, as opposed to a real server ID.
const TempIDPrefix = "temp-"

// IsTempID reports whether id is a client-allocated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// NewServerID allocates a fresh opaque server-side identifier, for
// entities with no useful creation-order (nodes, handles, edges).
func NewServerID() string {
	return uuid.NewString()
}

// NewSortableID allocates a lexically sortable-by-creation-time
// identifier, for TaskBatch and Task rows: their natural query
// pattern ("oldest pending batch", "tasks in creation order") reads
// better off an ID that already sorts chronologically than off a
// separate created_at comparison.
func NewSortableID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
