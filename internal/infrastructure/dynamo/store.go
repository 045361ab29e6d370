// Package dynamo adapts the single DynamoDB table every poster record lives
// in. The conditional update is the only concurrency primitive the rest of
// the service is allowed to build on; nothing here retries a rejected write.
package dynamo

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a stored row in attribute-value form.
type Item = map[string]types.AttributeValue

// ErrConditionFailed reports that a conditional write predicate did not hold
// against the current stored state. The write had no effect.
var ErrConditionFailed = errors.New("conditional check failed")

// Condition guards a conditional write. All populated clauses must hold
// simultaneously. Structured rather than expression strings so the in-memory
// backend can evaluate it the same way DynamoDB does.
type Condition struct {
	// ItemExists requires the item to be present (true) or absent (false).
	ItemExists *bool
	// AttrAbsent lists attributes that must not exist on the item.
	AttrAbsent []string
	// NumberEq requires each named number attribute to exist and equal the value.
	NumberEq map[string]int64
	// NumberGT requires each named number attribute to exist and exceed the value.
	NumberGT map[string]int64
}

// Mutation describes the attribute changes of a conditional update.
type Mutation struct {
	// Set assigns attribute values.
	Set Item
	// Add increments number attributes, creating them at the delta when absent.
	Add map[string]int64
}

// QueryOptions tunes a range query over one partition.
type QueryOptions struct {
	Limit      int32
	Descending bool
	// StartKey resumes after a previous page's LastKey.
	StartKey Item
	// BoolFilter keeps only items whose boolean attribute equals the given
	// value; an absent attribute counts as false. Applied after Limit, the
	// way DynamoDB filter expressions are.
	BoolFilter map[string]bool
}

// Page is one window of query results.
type Page struct {
	Items []Item
	// LastKey is non-nil when more items may follow.
	LastKey Item
}

// Store is the capability surface over the key-value table.
type Store interface {
	// Get returns the item at (pk, sk), or nil when absent.
	Get(ctx context.Context, pk, sk string) (Item, error)
	// Put writes a full item; a nil cond is an unconditional overwrite.
	Put(ctx context.Context, item Item, cond *Condition) error
	// Update applies mut iff cond holds, atomically, and returns the item's
	// new state. A failed predicate returns ErrConditionFailed and leaves
	// the item untouched. The item is created when absent, unless the
	// condition forbids it.
	Update(ctx context.Context, pk, sk string, mut Mutation, cond *Condition) (Item, error)
	// Query ranges over one partition by sort-key prefix.
	Query(ctx context.Context, pk, skPrefix string, opts QueryOptions) (*Page, error)
}

// Bool is a convenience for Condition.ItemExists literals.
func Bool(v bool) *bool {
	return &v
}

// StringAttr extracts a string attribute from an item, empty when absent.
func StringAttr(item Item, name string) string {
	if attr, ok := item[name].(*types.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}

// NumberAttr extracts a number attribute from an item, 0 when absent or not
// an integer.
func NumberAttr(item Item, name string) int64 {
	if attr, ok := item[name].(*types.AttributeValueMemberN); ok {
		value, err := strconv.ParseInt(attr.Value, 10, 64)
		if err != nil {
			return 0
		}
		return value
	}
	return 0
}

// BoolAttr extracts a boolean attribute from an item, false when absent.
func BoolAttr(item Item, name string) bool {
	if attr, ok := item[name].(*types.AttributeValueMemberBOOL); ok {
		return attr.Value
	}
	return false
}
