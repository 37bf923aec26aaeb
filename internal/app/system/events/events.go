// internal/app/system/events/events.go
package events

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dalemusser/attendhub/internal/domain/models"
)

// Op is the kind of change observed on a member document.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// Event is one member-record change. Before is nil on create; After is nil
// on delete. Before may also be nil on deletes when the collection has no
// pre-images enabled, in which case handlers can only log and move on.
type Event struct {
	Op     Op
	DocID  primitive.ObjectID
	Before *models.Member
	After  *models.Member
}

// Doc returns whichever image is available, preferring the after image.
func (e Event) Doc() *models.Member {
	if e.After != nil {
		return e.After
	}
	return e.Before
}
