// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream provides lazy, possibly infinite result streams.
//
// Description:
//
//	A Stream yields elements in preference order: earlier elements are
//	preferred. Nothing is computed until Next is called, and later
//	alternatives are not computed until earlier ones are exhausted. A
//	consumer cancels a search simply by not pulling any more.
//
//	Next returns (elem, true, nil) for an element, (zero, false, nil) when
//	the stream is exhausted and (zero, false, err) for a fatal failure.
//	After exhaustion or a fatal failure every further call repeats the
//	same outcome.
//
//	Streams are single pass. Pulling the same stream from two consumers
//	interleaves their elements.
//
// Thread Safety:
//
//	Streams are not safe for concurrent use.
package stream

import "iter"

// Stream is a lazy sequence of T.
type Stream[T any] interface {
	Next() (T, bool, error)
}

// Func adapts a pull function to a Stream.
type Func[T any] func() (T, bool, error)

// Next calls f.
func (f Func[T]) Next() (T, bool, error) { return f() }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

type empty[T any] struct{}

func (empty[T]) Next() (T, bool, error) {
	var zero T
	return zero, false, nil
}

// Empty returns the stream with no elements. An empty stream is how a
// tactic reports a silent failure.
func Empty[T any]() Stream[T] { return empty[T]{} }

type failed[T any] struct{ err error }

func (f failed[T]) Next() (T, bool, error) {
	var zero T
	return zero, false, f.err
}

// Fail returns a stream whose first pull reports err.
func Fail[T any](err error) Stream[T] { return failed[T]{err: err} }

// Of returns a stream over items.
func Of[T any](items ...T) Stream[T] {
	i := 0
	return Func[T](func() (T, bool, error) {
		if i >= len(items) {
			var zero T
			return zero, false, nil
		}
		i++
		return items[i-1], true, nil
	})
}

// Lazy defers building a stream until its first pull.
func Lazy[T any](mk func() Stream[T]) Stream[T] {
	var s Stream[T]
	return Func[T](func() (T, bool, error) {
		if s == nil {
			s = mk()
		}
		return s.Next()
	})
}

// Deterministic returns a stream of zero or one element.
//
// Description:
//
//	f runs on the first pull. It returns (elem, true, nil) to yield one
//	element, (zero, false, nil) for a silent failure, or a non-nil error
//	for a fatal failure. f is called at most once.
func Deterministic[T any](f func() (T, bool, error)) Stream[T] {
	done := false
	var err error
	return Func[T](func() (T, bool, error) {
		var zero T
		if done {
			return zero, false, err
		}
		done = true
		v, ok, e := f()
		if e != nil {
			err = e
			return zero, false, e
		}
		return v, ok, nil
	})
}

// -----------------------------------------------------------------------------
// Combinators
// -----------------------------------------------------------------------------

// FirstSuccessOf yields a's elements if a has any, otherwise b's.
//
// Description:
//
//	a is pulled once. If it yields an element, the result is exactly a's
//	elements and b is never called. Only when a is exhausted without
//	yielding anything is b called and its stream forwarded. A fatal
//	failure from a is reported as is; b is not tried.
func FirstSuccessOf[T any](a Stream[T], b func() Stream[T]) Stream[T] {
	var cur Stream[T]
	return Func[T](func() (T, bool, error) {
		if cur != nil {
			return cur.Next()
		}
		v, ok, err := a.Next()
		if err != nil {
			var zero T
			return zero, false, err
		}
		if ok {
			cur = a
			return v, true, nil
		}
		cur = b()
		return cur.Next()
	})
}

// Concat yields a's elements followed by b's.
//
// b is called only once a is exhausted. A fatal failure from a ends the
// stream without calling b.
func Concat[T any](a Stream[T], b func() Stream[T]) Stream[T] {
	var second Stream[T]
	return Func[T](func() (T, bool, error) {
		if second == nil {
			v, ok, err := a.Next()
			if err != nil || ok {
				return v, ok, err
			}
			second = b()
		}
		return second.Next()
	})
}

// Map applies f to every element.
func Map[T, U any](s Stream[T], f func(T) U) Stream[U] {
	return Func[U](func() (U, bool, error) {
		v, ok, err := s.Next()
		if err != nil || !ok {
			var zero U
			return zero, false, err
		}
		return f(v), true, nil
	})
}

// Take yields at most n elements of s. s is not pulled past the n-th.
func Take[T any](s Stream[T], n int) Stream[T] {
	taken := 0
	return Func[T](func() (T, bool, error) {
		if taken >= n {
			var zero T
			return zero, false, nil
		}
		v, ok, err := s.Next()
		if ok {
			taken++
		}
		return v, ok, err
	})
}

// -----------------------------------------------------------------------------
// Consumers
// -----------------------------------------------------------------------------

// Collect pulls up to limit elements. limit <= 0 pulls until exhaustion,
// which never returns for an infinite stream.
//
// On a fatal failure the elements pulled so far are returned with the error.
func Collect[T any](s Stream[T], limit int) ([]T, error) {
	var out []T
	for limit <= 0 || len(out) < limit {
		v, ok, err := s.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// First pulls a single element.
func First[T any](s Stream[T]) (T, bool, error) { return s.Next() }

// All adapts s to a range-over-func sequence. Iteration stops after the
// first error, which is yielded with a zero element.
func All[T any](s Stream[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, ok, err := s.Next()
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok || !yield(v, nil) {
				return
			}
		}
	}
}
