// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expr

import (
	"strconv"
	"strings"
)

// Format renders e in the s-expression syntax accepted by the problem
// reader. Bound variables print as their binder names; loose ones as #i.
func Format(e Expr) string {
	var sb strings.Builder
	format(&sb, e, nil)
	return sb.String()
}

func format(sb *strings.Builder, e Expr, names []string) {
	switch x := e.(type) {
	case *Var:
		if x.Idx < len(names) {
			sb.WriteString(names[len(names)-1-x.Idx])
			return
		}
		sb.WriteString("#")
		sb.WriteString(strconv.Itoa(x.Idx))
	case *Sort:
		switch x.Level {
		case 0:
			sb.WriteString("Prop")
		case 1:
			sb.WriteString("Type")
		default:
			sb.WriteString("(Sort ")
			sb.WriteString(strconv.Itoa(x.Level))
			sb.WriteString(")")
		}
	case *Const:
		sb.WriteString(string(x.Name))
	case *Local:
		sb.WriteString(x.Display)
	case *Meta:
		sb.WriteString("?")
		sb.WriteString(string(x.Name))
	case *App:
		fn, args := AppArgs(x)
		sb.WriteString("(")
		format(sb, fn, names)
		for _, a := range args {
			sb.WriteString(" ")
			format(sb, a, names)
		}
		sb.WriteString(")")
	case *Binding:
		if x.kind == KindPi && x.Binder == "_" && !HasLooseBVar(x.Body, 0) {
			sb.WriteString("(-> ")
			format(sb, x.Domain, names)
			sb.WriteString(" ")
			format(sb, x.Body, append(names, "_"))
			sb.WriteString(")")
			return
		}
		if x.kind == KindPi {
			sb.WriteString("(Pi (")
		} else {
			sb.WriteString("(fun (")
		}
		sb.WriteString(x.Binder)
		sb.WriteString(" ")
		format(sb, x.Domain, names)
		sb.WriteString(") ")
		format(sb, x.Body, append(names, x.Binder))
		sb.WriteString(")")
	case *Hole:
		sb.WriteString("_")
	case *Choice:
		sb.WriteString("(choice")
		for _, a := range x.Alts {
			sb.WriteString(" ")
			format(sb, a, names)
		}
		sb.WriteString(")")
	}
}
