package domtest

import (
	"fmt"
	"strings"
)

type attrCond struct {
	name  string
	op    string // "", "=", "^=", "$=", "*="
	value string
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCond
}

func (c compound) matches(n *Node) bool {
	if c.tag != "" && c.tag != "*" && c.tag != n.Tag {
		return false
	}
	if c.id != "" && n.Attrs["id"] != c.id {
		return false
	}
	for _, cl := range c.classes {
		if !n.HasClass(cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := n.Attrs[a.name]
		if a.name == "class" {
			v, ok = strings.Join(n.Classes, " "), len(n.Classes) > 0
		}
		if !ok {
			return false
		}
		switch a.op {
		case "":
		case "=":
			if v != a.value {
				return false
			}
		case "^=":
			if !strings.HasPrefix(v, a.value) {
				return false
			}
		case "$=":
			if !strings.HasSuffix(v, a.value) {
				return false
			}
		case "*=":
			if !strings.Contains(v, a.value) {
				return false
			}
		}
	}
	return true
}

func parseSelectorList(sel string) ([]compound, error) {
	var out []compound
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty selector in %q", sel)
		}
		c, err := parseCompound(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	readIdent := func() string {
		start := i
		for i < len(s) && (isIdent(s[i])) {
			i++
		}
		return s[start:i]
	}
	if i < len(s) && (isIdent(s[i]) || s[i] == '*') {
		if s[i] == '*' {
			i++
			c.tag = "*"
		} else {
			c.tag = strings.ToLower(readIdent())
		}
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			i++
			c.id = readIdent()
		case '.':
			i++
			c.classes = append(c.classes, readIdent())
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute selector in %q", s)
			}
			c.attrs = append(c.attrs, parseAttr(s[i+1:i+end]))
			i += end + 1
		default:
			return c, fmt.Errorf("unsupported selector %q", s)
		}
	}
	return c, nil
}

func parseAttr(body string) attrCond {
	for _, op := range []string{"^=", "$=", "*=", "="} {
		if idx := strings.Index(body, op); idx >= 0 {
			v := strings.TrimSpace(body[idx+len(op):])
			v = strings.Trim(v, `"'`)
			return attrCond{name: strings.TrimSpace(body[:idx]), op: op, value: v}
		}
	}
	return attrCond{name: strings.TrimSpace(body)}
}

func isIdent(b byte) bool {
	return b == '-' || b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
