package kvfs

import (
	"github.com/google/uuid"
)

// ID is the opaque identifier of a stored inode. Directory entries link
// names to IDs, so an ID stays the same when its inode is renamed.
type ID [16]byte

// RootID identifies the root directory. NewID never returns it.
var RootID ID

// NewID allocates a random 128 bit identifier.
func NewID() ID {
	for {
		id := ID(uuid.New())
		if id != RootID {
			return id
		}
	}
}

// ParseID parses the textual form produced by ID.String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsRoot reports whether id is the root sentinel.
func (id ID) IsRoot() bool {
	return id == RootID
}
