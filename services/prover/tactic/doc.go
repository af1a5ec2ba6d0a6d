// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tactic provides the tactic engine: the tactic contract, the
// backtracking combinators, and the closing tactics.
//
// Architecture:
//
//	A tactic maps (environment, io state, proof state) to a lazy stream of
//	proof states. The stream is the set of alternative outcomes in
//	preference order; an empty stream is failure.
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                          Registry                                   │
//	│  exact  rexact  refine            assumption  eassumption           │
//	│    │      │       │                    │           │                │
//	│    └──────┴───────┘                    └─────┬─────┘                │
//	│            │                                 │                      │
//	│            ▼                                 ▼                      │
//	│       ExactTactic  ◄──── one per hypothesis ─ AssumptionSearch     │
//	│            │                                 │                      │
//	│            ▼                                 ▼                      │
//	│   Elaborator / TypeChecker        OrElse (assumption)               │
//	│                                   Append (eassumption)              │
//	└─────────────────────────────────────────────────────────────────────┘
//
// Failure reporting:
//
//	Every failure has two behaviours, selected by the proof state's
//	ReportFailure flag. With reporting on, the stream's first pull returns
//	a *Diagnostic error: the call was the authoritative attempt and the
//	user should see why it failed. With reporting off the stream is simply
//	empty, so the enclosing search moves on to the next alternative.
//
// Laziness:
//
//	No elaboration happens when Run is called. Work is done on the first
//	pull of the returned stream, and OrElse never runs its second tactic
//	when the first produced a result.
//
// Thread Safety:
//
//	Tactics are immutable and may be shared. Streams are single-consumer.
//	Registry is safe for concurrent use.
package tactic
