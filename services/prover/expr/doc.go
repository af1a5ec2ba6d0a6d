// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expr provides the immutable term trees the prover operates on.
//
// Representation:
//
//	Terms are locally nameless. Bound variables are de Bruijn indices (Var)
//	and only occur under a binder. Free variables are either local constants
//	(Local, a hypothesis in scope) or metavariables (Meta, a not yet
//	determined term). Nodes are shared between trees and never form cycles.
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│  Sort   Const   Local   Meta   Var          ← leaves              │
//	│  App(Fn, Arg)                               ← binary application  │
//	│  Lambda / Pi (Binder, Domain, Body)         ← binders             │
//	│  Hole   Choice(Alts...)                     ← surface only        │
//	└──────────────────────────────────────────────────────────────────┘
//
//	Hole and Choice never reach the kernel. The elaborator replaces them
//	before a term is type checked or assigned.
//
// Placeholders:
//
//	A placeholder is a metavariable applied to zero or more local
//	constants (?m l1 ... ln). It marks a sub-proof that was deferred on
//	purpose, as opposed to a metavariable that elaboration left behind
//	inside some larger term.
//
// Thread Safety:
//
//	All values are immutable after construction and safe for concurrent use.
package expr
