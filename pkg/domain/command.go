package domain

import "time"

// CommandResult represents the result of processing a command.
type CommandResult struct {
	// CommandID is the ID of the command that was processed
	CommandID string

	// Events are the events produced by the command
	Events []*Event

	// AlreadyProcessed indicates if this was a duplicate command
	AlreadyProcessed bool

	// ProcessedAt is when the command was originally processed
	ProcessedAt time.Time
}
