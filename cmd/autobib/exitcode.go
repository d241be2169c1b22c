package main

import (
	"github.com/autobib/autobib/identifier"
	"github.com/autobib/autobib/provider"
	"github.com/autobib/autobib/resolve"
	"github.com/autobib/autobib/store"
)

// Exit codes per spec §6.
const (
	exitOK            = 0
	exitUserError     = 1
	exitNetworkError  = 2
	exitDatabaseError = 3
	exitConfigError   = 4
)

// exitCodeForError classifies an error into one of spec §6's exit codes,
// mirroring the error taxonomy of §7: input/absence errors are user errors,
// NetworkError is its own code, everything from the storage engine is a
// database error.
func exitCodeForError(err error) int {
	if err == nil {
		return exitOK
	}
	switch err.(type) {
	case *provider.NetworkError:
		return exitNetworkError
	case *store.DatabaseError, *store.ForeignDatabaseError, *store.UnsupportedVersionError:
		return exitDatabaseError
	case *identifier.BadCitationKeyError, *identifier.BadSubIDError:
		return exitUserError
	}
	return exitUserError
}

// exitCodeForOutcome maps a resolve.Outcome's Kind to spec §6's exit codes
// for the single-identifier commands (get, etc).
func exitCodeForOutcome(k resolve.Kind) int {
	switch k {
	case resolve.KindEntry:
		return exitOK
	case resolve.KindNetworkError:
		return exitNetworkError
	case resolve.KindDatabaseError:
		return exitDatabaseError
	default:
		// NullRemote, NullAlias, Deleted, BadIdentifier: all user-facing,
		// non-fatal outcomes.
		return exitUserError
	}
}
