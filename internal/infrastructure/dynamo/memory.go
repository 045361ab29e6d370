package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryStore implements Store in process memory with the same conditional
// semantics as DynamoDB, including filter-after-limit query behavior. It
// backs unit tests and local development without DynamoDB Local.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

func memKey(pk, sk string) string {
	return pk + "\x00" + sk
}

// Get returns the item at (pk, sk), or nil when absent.
func (m *MemoryStore) Get(_ context.Context, pk, sk string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[memKey(pk, sk)]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

// Put writes a full item, optionally guarded by a condition.
func (m *MemoryStore) Put(_ context.Context, item Item, cond *Condition) error {
	pk := StringAttr(item, AttrPK)
	sk := StringAttr(item, AttrSK)

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.items[memKey(pk, sk)]
	if cond != nil && !evalCondition(current, cond) {
		return ErrConditionFailed
	}
	m.items[memKey(pk, sk)] = copyItem(item)
	return nil
}

// Update applies the mutation iff the condition holds.
func (m *MemoryStore) Update(_ context.Context, pk, sk string, mut Mutation, cond *Condition) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.items[memKey(pk, sk)]
	if cond != nil && !evalCondition(current, cond) {
		return nil, ErrConditionFailed
	}

	var next Item
	if exists {
		next = copyItem(current)
	} else {
		next = Item{
			AttrPK: &types.AttributeValueMemberS{Value: pk},
			AttrSK: &types.AttributeValueMemberS{Value: sk},
		}
	}
	for name, value := range mut.Set {
		next[name] = value
	}
	for name, delta := range mut.Add {
		next[name] = &types.AttributeValueMemberN{
			Value: strconv.FormatInt(NumberAttr(next, name)+delta, 10),
		}
	}

	m.items[memKey(pk, sk)] = next
	return copyItem(next), nil
}

// Query ranges over one partition by sort-key prefix.
func (m *MemoryStore) Query(_ context.Context, pk, skPrefix string, opts QueryOptions) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]Item, 0)
	for _, item := range m.items {
		if StringAttr(item, AttrPK) != pk {
			continue
		}
		if !strings.HasPrefix(StringAttr(item, AttrSK), skPrefix) {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool {
		less := StringAttr(matched[i], AttrSK) < StringAttr(matched[j], AttrSK)
		if opts.Descending {
			return !less
		}
		return less
	})

	// Resume strictly after the start key. DynamoDB rejects an
	// ExclusiveStartKey whose partition does not match the key condition,
	// so the double does too.
	if len(opts.StartKey) > 0 {
		if startPK := StringAttr(opts.StartKey, AttrPK); startPK != pk {
			return nil, fmt.Errorf("start key partition %q does not match queried partition %q", startPK, pk)
		}
		startSK := StringAttr(opts.StartKey, AttrSK)
		from := 0
		for i, item := range matched {
			if StringAttr(item, AttrSK) == startSK {
				from = i + 1
				break
			}
		}
		matched = matched[from:]
	}

	// Limit bounds the scanned window; the filter runs on that window
	// afterwards, matching DynamoDB.
	window := matched
	var lastKey Item
	if opts.Limit > 0 && int(opts.Limit) < len(matched) {
		window = matched[:opts.Limit]
		last := window[len(window)-1]
		lastKey = Item{
			AttrPK: last[AttrPK],
			AttrSK: last[AttrSK],
		}
	}

	items := make([]Item, 0, len(window))
	for _, item := range window {
		if matchesBoolFilter(item, opts.BoolFilter) {
			items = append(items, copyItem(item))
		}
	}

	return &Page{Items: items, LastKey: lastKey}, nil
}

// Len reports the number of stored items.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Delete physically removes an item; retention cleanup, not a user operation.
func (m *MemoryStore) Delete(pk, sk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, memKey(pk, sk))
}

func evalCondition(current Item, cond *Condition) bool {
	if cond.ItemExists != nil {
		if *cond.ItemExists != (current != nil) {
			return false
		}
	}
	for _, name := range cond.AttrAbsent {
		if current != nil {
			if _, ok := current[name]; ok {
				return false
			}
		}
	}
	for name, value := range cond.NumberEq {
		if current == nil {
			return false
		}
		if _, ok := current[name]; !ok {
			return false
		}
		if NumberAttr(current, name) != value {
			return false
		}
	}
	for name, value := range cond.NumberGT {
		if current == nil {
			return false
		}
		if _, ok := current[name]; !ok {
			return false
		}
		if NumberAttr(current, name) <= value {
			return false
		}
	}
	return true
}

func matchesBoolFilter(item Item, filter map[string]bool) bool {
	for name, want := range filter {
		if BoolAttr(item, name) != want {
			return false
		}
	}
	return true
}

func copyItem(item Item) Item {
	dup := make(Item, len(item))
	for k, v := range item {
		dup[k] = v
	}
	return dup
}
