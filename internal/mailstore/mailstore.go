// Package mailstore defines the narrow capability the storage engine
// consumes from a backing append-only mailbox: select/create a folder,
// enumerate and fetch messages by sequence, append new ones, and delete
// plus expunge old ones. Concrete backends (IMAP, Maildir) live in their
// own packages and implement Store.
package mailstore

import "context"

// Seq is a server-assigned sequence identifier: strictly monotonic over
// time for a given folder, never reused, and totally ordering every
// append against that folder.
type Seq uint32

// Range is an optional byte range for a partial fetch, used by the sync
// engine's reverse-scan peek (first 1024 bytes of a message). A zero
// value Range means "fetch the whole message".
type Range struct {
	// Length is the number of bytes to fetch from the start of the
	// message. Zero means no limit.
	Length int
}

// Store is the capability the engine requires of a backing mailbox.
// Every method is synchronous; callers provide a context for
// cancellation/timeouts, which the engine itself does not impose.
type Store interface {
	// Select chooses folder as the active mailbox and returns how many
	// messages it currently holds. It returns a mailstore-specific
	// not-found condition (checked with errors.Is against ErrNotFound)
	// if the folder does not exist.
	Select(ctx context.Context, folder string) (count int, err error)

	// Create makes folder if it does not already exist.
	Create(ctx context.Context, folder string) error

	// SearchAll returns every sequence currently present in the
	// selected folder, in no particular order.
	SearchAll(ctx context.Context) ([]Seq, error)

	// Fetch returns the raw message bytes for seq. If rng is non-nil,
	// only the leading rng.Length bytes need be returned (backends may
	// return more, never less than what's needed to cover a full
	// X-Mailfile header when the message has one).
	Fetch(ctx context.Context, seq Seq, rng *Range) ([]byte, error)

	// Append writes a new message to folder and returns its assigned
	// sequence, which must be strictly greater than every sequence
	// previously returned for that folder.
	Append(ctx context.Context, folder string, message []byte) (Seq, error)

	// StoreDelete marks seqs for deletion. Deletion is not guaranteed
	// visible to SearchAll until Expunge is also called.
	StoreDelete(ctx context.Context, seqs []Seq) error

	// Expunge permanently removes everything marked for deletion.
	Expunge(ctx context.Context) error
}

// ErrNotFound is returned when a requested folder (Select) or message
// (Fetch) does not exist; the vault package also wraps it for a path
// with no live version. Callers should wrap it with additional context.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "mailstore: not found" }
