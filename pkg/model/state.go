package model

// ScheduleStatus represents the lifecycle state of a ScheduleEntry.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "PENDING"
	ScheduleStatusGenerated ScheduleStatus = "GENERATED"
	ScheduleStatusPosted    ScheduleStatus = "POSTED"
	ScheduleStatusFailed    ScheduleStatus = "FAILED"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
)

// String returns the string representation of the schedule status.
func (s ScheduleStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the entry is in a final state.
func (s ScheduleStatus) IsTerminal() bool {
	switch s {
	case ScheduleStatusPosted, ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is one of the known statuses.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleStatusPending, ScheduleStatusGenerated, ScheduleStatusPosted,
		ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	}
	return false
}

// ValidScheduleTransitions defines the allowed state transitions for schedule entries.
// Transitions are forward-only: nothing returns to PENDING.
var ValidScheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleStatusPending:   {ScheduleStatusGenerated, ScheduleStatusFailed, ScheduleStatusCancelled},
	ScheduleStatusGenerated: {ScheduleStatusPosted, ScheduleStatusCancelled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	for _, allowed := range ValidScheduleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SelectionLabel records how a template was chosen for an entry.
type SelectionLabel string

const (
	LabelRandom       SelectionLabel = "RANDOM"
	LabelExploration  SelectionLabel = "EXPLORATION"
	LabelExploitation SelectionLabel = "EXPLOITATION"
	LabelManual       SelectionLabel = "MANUAL"
)

// String returns the string representation of the label.
func (l SelectionLabel) String() string {
	return string(l)
}
