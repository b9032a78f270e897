package search

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CollectionRef identifies a collection by name or by registration index.
// On the wire it is either a JSON string or a JSON number; clients that
// fetched the collection list may address collections by position.
type CollectionRef struct {
	Name  string
	Index int
	byIdx bool
}

// RefByName returns a reference addressing a collection by name.
func RefByName(name string) CollectionRef {
	return CollectionRef{Name: name}
}

// RefByIndex returns a reference addressing a collection by its position
// in the registration order.
func RefByIndex(idx int) CollectionRef {
	return CollectionRef{Index: idx, byIdx: true}
}

// ByIndex reports whether the reference addresses by position.
func (r CollectionRef) ByIndex() bool {
	return r.byIdx
}

func (r CollectionRef) String() string {
	if r.byIdx {
		return strconv.Itoa(r.Index)
	}
	return r.Name
}

// UnmarshalJSON accepts either a string (name) or a number (index).
func (r *CollectionRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = RefByName(name)
		return nil
	}
	var idx int
	if err := json.Unmarshal(data, &idx); err == nil {
		*r = RefByIndex(idx)
		return nil
	}
	return fmt.Errorf("collection must be a string or an integer, got %s", data)
}

// MarshalJSON emits a number for index references, a string otherwise.
func (r CollectionRef) MarshalJSON() ([]byte, error) {
	if r.byIdx {
		return json.Marshal(r.Index)
	}
	return json.Marshal(r.Name)
}
