package repository

import "github.com/google/uuid"

// Event is a change to an import record that other parts of the system react to.
type Event interface {
	AggregateID() uuid.UUID
}

// FileReplaced is emitted when a record is created or its blob changes.
type FileReplaced struct {
	ImportID uuid.UUID
	Revision int
}

func (e FileReplaced) AggregateID() uuid.UUID { return e.ImportID }

// StatusChanged is emitted when the stored status differs from the loaded one.
type StatusChanged struct {
	ImportID uuid.UUID
	From     Status
	To       Status
}

func (e StatusChanged) AggregateID() uuid.UUID { return e.ImportID }

// Diff returns the events implied by going from before to after. A nil
// before is a creation.
func Diff(before, after *ImportFile) []Event {
	if before == nil {
		return []Event{FileReplaced{ImportID: after.ID, Revision: after.Revision}}
	}

	var events []Event
	if before.FilePath != after.FilePath {
		events = append(events, FileReplaced{ImportID: after.ID, Revision: after.Revision})
	}
	if before.Status != after.Status {
		events = append(events, StatusChanged{ImportID: after.ID, From: before.Status, To: after.Status})
	}
	return events
}
