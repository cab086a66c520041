package core

import "errors"

var (
	// ErrUnknownParticipant is returned when a message targets, or a
	// deregistration names, an identifier that is not registered.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrDuplicateParticipant is returned when an identifier is registered twice.
	ErrDuplicateParticipant = errors.New("duplicate participant")

	// ErrEmptyParticipantID is returned when registering an empty identifier.
	ErrEmptyParticipantID = errors.New("empty participant id")

	// ErrMailboxClosed is returned by Receive once the owning participant has
	// been deregistered.
	ErrMailboxClosed = errors.New("mailbox closed")

	// ErrMailboxFull is returned when a bounded mailbox cannot accept another
	// message. Sends never block waiting for capacity.
	ErrMailboxFull = errors.New("mailbox full")
)
