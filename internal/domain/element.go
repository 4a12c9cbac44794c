package domain

// SameElement reports whether a and b refer to the same live node.
func SameElement(a, b Element) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b
}

// Closest walks from el up through its ancestors and returns the first match, or nil.
func Closest(el Element, pred func(Element) bool) Element {
	for cur := el; cur != nil; cur = cur.Parent() {
		if pred(cur) {
			return cur
		}
	}
	return nil
}

// Contains reports whether el is ancestor itself or one of its descendants.
func Contains(ancestor, el Element) bool {
	if ancestor == nil {
		return false
	}
	return Closest(el, func(e Element) bool { return e == ancestor }) != nil
}

// AttrEquals reports whether el has attribute name set to value.
func AttrEquals(el Element, name, value string) bool {
	v, ok := el.Attr(name)
	return ok && v == value
}
