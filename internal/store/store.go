package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is the raw document representation shared by all adapters.
type Item = map[string]types.AttributeValue

// Key addresses one document: a table (collection) plus the value of its
// "id" partition key.
type Key struct {
	Table string
	ID    string
}

// VersionAttr is the per-document counter used for optimistic concurrency.
// Every write staged through a Tx bumps it; commits are conditioned on the
// version observed when the document was read.
const VersionAttr = "doc_version"

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrTooManyConflicts is returned by RunTransaction when the body kept
	// losing optimistic-concurrency races and the attempt budget ran out.
	ErrTooManyConflicts = errors.New("transaction aborted after repeated write conflicts")
)

// Tx stages reads and writes for one atomic transaction. Writes are not
// visible until the transaction commits; the whole set commits together or
// not at all.
type Tx interface {
	// Get reads a document inside the transaction and records its version.
	// Returns ErrNotFound if the document does not exist.
	Get(ctx context.Context, key Key, out interface{}) error

	// Put stages a full-document write. A document read earlier in the same
	// transaction is replaced at its observed version; an unread key is a
	// create and the commit fails if the document already exists.
	Put(key Key, doc interface{}) error

	// Update stages a partial write of the given fields. The document must
	// have been read (and found) earlier in the same transaction.
	Update(key Key, fields map[string]interface{}) error
}

// Adapter is the document store consumed by the engine. RunTransaction
// executes fn against a fresh Tx and commits its staged writes atomically,
// re-running fn when a concurrent writer invalidated any document it read.
type Adapter interface {
	Get(ctx context.Context, key Key, out interface{}) error
	NewID() string
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// itemVersion extracts the optimistic-concurrency counter from a raw item.
// Absent or malformed counters read as zero, which commit logic treats the
// same as "document did not exist".
func itemVersion(it Item) int64 {
	av, ok := it[VersionAttr]
	if !ok {
		return 0
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
