// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"errors"
	"fmt"
)

// ErrMessageGone marks a fetch whose message vanished from the folder while
// the run was in progress. Callers skip the message and continue.
var ErrMessageGone = errors.New("message is no longer present in the folder")

// ProtocolError is any failed IMAP operation. It carries the attempted
// operation and the raw server response for diagnostics and is fatal to the
// run in which it occurs.
type ProtocolError struct {
	Op       string
	Response string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Response != "" {
		return fmt.Sprintf("imap %s failed: %v (server said: %s)", e.Op, e.Err, e.Response)
	}
	return fmt.Sprintf("imap %s failed: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ClassifierTransportError means the connection between the classifier
// frontend and its backend is down, as opposed to a message merely scoring
// low. It aborts the run.
type ClassifierTransportError struct {
	Output string
}

func (e *ClassifierTransportError) Error() string {
	return fmt.Sprintf("classifier backend unreachable (got %q)", e.Output)
}

// ClassifierMisconfiguredError is raised when teaching is attempted but
// disabled on the classifier backend (spamd without --allow-tell).
type ClassifierMisconfiguredError struct {
	ExitCode int
}

func (e *ClassifierMisconfiguredError) Error() string {
	return fmt.Sprintf("classifier backend refuses teaching, exit code %d (is spamd running with --allow-tell?)", e.ExitCode)
}
