package framework

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// AllowList restricts which block types and dynamic categories are usable.
// A nil AllowList allows everything; an empty non-nil one allows nothing.
type AllowList map[string]struct{}

// NewAllowList builds an allow-list from the provided identifiers. Blank
// entries are skipped.
func NewAllowList(types ...string) AllowList {
	list := make(AllowList, len(types))
	for _, t := range types {
		key := foldType(t)
		if key == "" {
			continue
		}
		list[key] = struct{}{}
	}
	return list
}

// ParseAllowList splits a comma separated list. The literal "*" means allow
// all and yields nil.
func ParseAllowList(raw string) AllowList {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		return nil
	}
	if raw == "" {
		return AllowList{}
	}
	return NewAllowList(strings.Split(raw, ",")...)
}

// Allows reports whether the identifier is permitted.
func (a AllowList) Allows(typ string) bool {
	if a == nil {
		return true
	}
	_, ok := a[foldType(typ)]
	return ok
}

// Unrestricted reports whether the list allows every block.
func (a AllowList) Unrestricted() bool {
	return a == nil
}

// Types returns the sorted identifiers. Nil for an unrestricted list.
func (a AllowList) Types() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a))
	for t := range a {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone copies the list, preserving nil.
func (a AllowList) Clone() AllowList {
	if a == nil {
		return nil
	}
	out := make(AllowList, len(a))
	for k := range a {
		out[k] = struct{}{}
	}
	return out
}

// Equal compares two lists, distinguishing nil from empty.
func (a AllowList) Equal(b AllowList) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func foldType(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
