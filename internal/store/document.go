package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Table names
const (
	TableLedger       = "ledger"
	TableLog          = "log"
	TableReservations = "reservations"
)

// ErrStaleWrite is returned when a document changed since it was loaded
var ErrStaleWrite = errors.New("document changed since it was loaded, please retry")

// Version is an opaque precondition token. The empty version means "does not exist yet".
type Version string

// VersionOf returns the content hash used as the version token
func VersionOf(body []byte) Version {
	sum := sha256.Sum256(body)
	return Version(hex.EncodeToString(sum[:]))
}

// Document is one whole table as stored
type Document struct {
	Name    string
	Body    []byte
	Version Version
}

// DocumentStore loads and saves whole documents under optimistic concurrency.
// Save fails with ErrStaleWrite when the stored version is not expected.
type DocumentStore interface {
	Load(ctx context.Context, name string) (Document, error)
	Save(ctx context.Context, name string, body []byte, expected Version) (Version, error)
}
