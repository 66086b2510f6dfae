package types

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type Place struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Address  string `json:"address"`
}

// ImportedPlace is a place as reported by the external places source,
// before its categories are joined for storage.
type ImportedPlace struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
	Address    string   `json:"address"`
}

// DataStore is implemented by every storage backend. Each method runs a
// single statement; nothing spans two calls.
type DataStore interface {
	CreatePlace(ctx context.Context, name, category, address string) (int64, error)
	FindAddressByName(ctx context.Context, name string) (string, error)
	FindNameByAddress(ctx context.Context, address string) (string, error)
	ListByCategory(ctx context.Context, substring string) ([]Place, error)
	ListAll(ctx context.Context) ([]Place, error)
	UpdateAddress(ctx context.Context, name, address string) (int64, error)
	DeleteByName(ctx context.Context, name string) (int64, error)
	ClearAll(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound   = errors.New("place not found")
	ErrValidation = errors.New("invalid input")
)

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FetchError reports a failed request to the external places source.
// StatusCode is zero when the request never completed.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch places: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("fetch places: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for op. A nil err stays nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Missing returns a validation error naming the absent field.
func Missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrValidation, field)
}

// Normalize trims surrounding whitespace and puts s in Unicode NFC so the
// same text typed on different clients compares equal in the store.
func Normalize(s string) string {
	return Compose(strings.TrimSpace(s))
}

// Compose puts s in Unicode NFC and keeps every other rune, spaces
// included. Substring filters go through Compose, not Normalize.
func Compose(s string) string {
	return norm.NFC.String(s)
}
