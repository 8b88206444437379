package value

import "math"

// Table is Lua's one aggregate type: a hybrid array part (1-based dense
// integer keys) plus a hash part for everything else, the same split the
// teacher's luaTable uses, generalized to an idiomatic Go map instead of a
// sorted-array-with-binary-search.
type Table struct {
	arr  []any
	hash map[any]any
}

func NewTable(nArr, nHash int) *Table {
	t := &Table{}
	if nArr > 0 {
		t.arr = make([]any, 0, nArr)
	}
	if nHash > 0 {
		t.hash = make(map[any]any, nHash)
	}
	return t
}

// Len returns the border used by the `#` operator: the length of the
// contiguous array part.
func (t *Table) Len() int {
	return len(t.arr)
}

func normalizeKey(key any) any {
	if f, ok := key.(float64); ok {
		if i, ok := FloatToInteger(f); ok {
			return i
		}
	}
	return key
}

func (t *Table) Get(key any) any {
	key = normalizeKey(key)
	if idx, ok := key.(int64); ok && idx >= 1 && idx <= int64(len(t.arr)) {
		return t.arr[idx-1]
	}
	if t.hash == nil {
		return nil
	}
	return t.hash[key]
}

// Set stores val at key, nil deletes it. Keys are 1-based in the array part
// to match Lua indexing directly, unlike the teacher's 0-based internal arr.
func (t *Table) Set(key, val any) error {
	if key == nil {
		return errNilIndex
	}
	if f, ok := key.(float64); ok && math.IsNaN(f) {
		return errNaNIndex
	}
	key = normalizeKey(key)

	if idx, ok := key.(int64); ok && idx >= 1 {
		arrLen := int64(len(t.arr))
		switch {
		case idx <= arrLen:
			t.arr[idx-1] = val
			if idx == arrLen && val == nil {
				t.shrink()
			}
			return nil
		case idx == arrLen+1:
			if val == nil {
				if t.hash != nil {
					delete(t.hash, key)
				}
				return nil
			}
			t.arr = append(t.arr, val)
			t.absorbFromHash()
			return nil
		}
	}
	if val == nil {
		if t.hash != nil {
			delete(t.hash, key)
		}
		return nil
	}
	if t.hash == nil {
		t.hash = make(map[any]any, 8)
	}
	t.hash[key] = val
	return nil
}

func (t *Table) shrink() {
	i := len(t.arr)
	for i > 0 && t.arr[i-1] == nil {
		i--
	}
	t.arr = t.arr[:i]
}

// absorbFromHash pulls any hash entries that now continue the array part,
// the same migration the teacher's _expandArray performs on append.
func (t *Table) absorbFromHash() {
	if t.hash == nil {
		return
	}
	for {
		nextIdx := int64(len(t.arr)) + 1
		v, ok := t.hash[nextIdx]
		if !ok {
			return
		}
		delete(t.hash, nextIdx)
		t.arr = append(t.arr, v)
	}
}

// Next implements stateless iteration for pairs()/next(): nil starts the
// walk, array indices first in order, then hash keys in map order (Go's map
// iteration order is randomized per Lua's own unspecified pairs() order).
func (t *Table) Next(key any) (nextKey, nextVal any, ok bool) {
	if key == nil {
		if len(t.arr) > 0 {
			return int64(1), t.arr[0], true
		}
		return t.firstHashEntry()
	}
	key = normalizeKey(key)
	if idx, isInt := key.(int64); isInt && idx >= 1 && idx <= int64(len(t.arr)) {
		if idx < int64(len(t.arr)) {
			return idx + 1, t.arr[idx], true
		}
		return t.firstHashEntry()
	}
	return t.hashEntryAfter(key)
}

func (t *Table) firstHashEntry() (any, any, bool) {
	for k, v := range t.hash {
		return k, v, true
	}
	return nil, nil, false
}

// hashEntryAfter relies on a single consistent range over the map; callers
// that mutate the table mid-iteration get undefined results, matching Lua's
// own contract for next().
func (t *Table) hashEntryAfter(key any) (any, any, bool) {
	found := false
	for k, v := range t.hash {
		if found {
			return k, v, true
		}
		if k == key {
			found = true
		}
	}
	if found {
		return nil, nil, false
	}
	return nil, nil, false
}
