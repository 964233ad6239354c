package version

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"reflect"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/i-m-c/go-inheritance/internal/codec"
)

// Digest returns the hex BLAKE3 digest of the deterministic CBOR encoding
// of values. Equal snapshots always have equal digests.
func Digest(values ValueMap) (string, error) {
	data, err := codec.Default().Marshal(map[string]any(values))
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Diff lists the fields that differ between two snapshots.
type Diff struct {
	// Added contains fields present only in the newer snapshot.
	Added []string `json:"added,omitempty"`

	// Removed contains fields present only in the older snapshot.
	Removed []string `json:"removed,omitempty"`

	// Changed contains fields present in both with different values.
	Changed []string `json:"changed,omitempty"`
}

// IsEmpty reports whether the snapshots are equal.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// TotalChanges returns the number of differing fields.
func (d Diff) TotalChanges() int {
	return len(d.Added) + len(d.Removed) + len(d.Changed)
}

// Compare computes the difference from old to new. Nil maps are treated as
// empty. Results are sorted by field name.
func Compare(old, new ValueMap) Diff {
	var d Diff
	for name, nv := range new {
		ov, existed := old[name]
		if !existed {
			d.Added = append(d.Added, name)
		} else if !sameValue(ov, nv) {
			d.Changed = append(d.Changed, name)
		}
	}
	for name := range old {
		if _, exists := new[name]; !exists {
			d.Removed = append(d.Removed, name)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

// sameValue compares canonical encodings so that int and int64 or
// differently ordered maps compare equal.
func sameValue(a, b any) bool {
	c := codec.Default()
	ea, errA := c.Marshal(a)
	eb, errB := c.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ea, eb)
}
