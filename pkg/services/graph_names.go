package services

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// foldName reduces a name to a comparison form: lower case, underscores dropped.
// PurchaseOrderItem, purchase_order_item and PURCHASE_ORDER_ITEM fold alike.
func foldName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// nameVariants are the folded forms an entity or column name may take physically.
func nameVariants(name string) []string {
	folded := foldName(name)
	variants := []string{folded}
	for _, v := range []string{foldName(inflection.Plural(name)), foldName(inflection.Singular(name))} {
		if v != folded {
			variants = append(variants, v)
		}
	}
	return variants
}

// nameIndex resolves CSN names to physical names. The first name added under
// a folded form wins.
type nameIndex[T any] struct {
	exact  map[string]T
	folded map[string]T
}

func newNameIndex[T any]() *nameIndex[T] {
	return &nameIndex[T]{
		exact:  make(map[string]T),
		folded: make(map[string]T),
	}
}

func (idx *nameIndex[T]) add(name string, v T) {
	if _, ok := idx.exact[name]; !ok {
		idx.exact[name] = v
	}
	for _, f := range []string{foldName(name), foldName(inflection.Singular(name))} {
		if _, ok := idx.folded[f]; !ok {
			idx.folded[f] = v
		}
	}
}

// resolve tries an exact match, then case and underscore insensitive
// matches including plural and singular forms.
func (idx *nameIndex[T]) resolve(name string) (T, bool) {
	if v, ok := idx.exact[name]; ok {
		return v, true
	}
	for _, f := range nameVariants(name) {
		if v, ok := idx.folded[f]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
