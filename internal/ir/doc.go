// Package ir provides the generic value tree used for resource bodies.
//
// A body is an arbitrarily nested keyed document. Nothing in the store
// assumes a fixed field schema: search extraction, projection and reference
// walks all operate on IRValue trees through declared paths.
//
// Key design constraints:
//   - No float types: non-integral numbers keep their literal text (IRDecimal)
//   - Object keys are iterated in RFC 8785 order wherever order is observable
//   - Canonical JSON (MarshalCanonical) is the only input to digests
//
// All other internal packages import ir; ir imports nothing internal.
package ir
