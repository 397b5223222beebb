package model

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a task.
type Status string

const (
	Pending   Status = "Pending"
	Ongoing   Status = "Ongoing"
	Completed Status = "Completed"
)

// ParseStatus parses a status cell. Matching is case-insensitive and an empty
// cell counts as Pending, which is how fresh assignments arrive.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return Pending, nil
	case "ongoing":
		return Ongoing, nil
	case "completed":
		return Completed, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == Completed
}

// CanAdvanceTo reports whether moving from s to next is a forward move.
func (s Status) CanAdvanceTo(next Status) bool {
	return rank(next) > rank(s) && rank(s) > 0
}

func rank(s Status) int {
	switch s {
	case Pending:
		return 1
	case Ongoing:
		return 2
	case Completed:
		return 3
	}
	return 0
}

// AggregateStatus derives the status of a group of tasks: Completed when all
// members are Completed, Pending when all are Pending, Ongoing otherwise.
func AggregateStatus(tasks []Task) Status {
	if len(tasks) == 0 {
		return Pending
	}
	allCompleted, allPending := true, true
	for _, t := range tasks {
		if t.Status != Completed {
			allCompleted = false
		}
		if t.Status != Pending {
			allPending = false
		}
	}
	switch {
	case allCompleted:
		return Completed
	case allPending:
		return Pending
	}
	return Ongoing
}
