package fixmsg

import (
	"github.com/quickfixgo/quickfix"
)

// GroupSource is a field map repeating groups are read from: a message
// header or body, or an entry of an enclosing group.
type GroupSource interface {
	Has(tag quickfix.Tag) bool
	GetGroup(parser quickfix.FieldGroupReader) quickfix.MessageRejectError
}

// Groups reads the repeating group counted by tag, laid out by template, and
// returns its entries in order. A missing group yields no entries.
//
//	sides, err := fixmsg.Groups(&msg.Body, tagNoSides, quickfix.GroupTemplate{
//		quickfix.GroupElement(tagSide),
//		quickfix.GroupElement(tagOrderID),
//	})
func Groups(src GroupSource, tag quickfix.Tag, template quickfix.GroupTemplate) ([]*quickfix.Group, error) {
	if src == nil || !src.Has(tag) {
		return nil, nil
	}
	rg := quickfix.NewRepeatingGroup(tag, template)
	if err := src.GetGroup(rg); err != nil {
		return nil, err
	}
	groups := make([]*quickfix.Group, rg.Len())
	for i := range groups {
		groups[i] = rg.Get(i)
	}
	return groups, nil
}

// Group returns entry i (zero based) of the repeating group counted by tag.
func Group(src GroupSource, tag quickfix.Tag, template quickfix.GroupTemplate, i int) (*quickfix.Group, bool) {
	groups, err := Groups(src, tag, template)
	if err != nil || i < 0 || i >= len(groups) {
		return nil, false
	}
	return groups[i], true
}

// HasGroup reports whether entry i of the repeating group exists and
// satisfies match. Unreadable groups never match.
func HasGroup(src GroupSource, tag quickfix.Tag, template quickfix.GroupTemplate, i int, match func(*quickfix.Group) bool) bool {
	g, ok := Group(src, tag, template, i)
	return ok && match(g)
}

// HasAnyGroup reports whether some entry of the repeating group satisfies
// match.
func HasAnyGroup(src GroupSource, tag quickfix.Tag, template quickfix.GroupTemplate, match func(*quickfix.Group) bool) bool {
	groups, err := Groups(src, tag, template)
	if err != nil {
		return false
	}
	for _, g := range groups {
		if match(g) {
			return true
		}
	}
	return false
}
