// Package hierarchy resolves the ancestor types of a message type.
//
// Go has no class inheritance. The only types a value can be handed to a
// handler "as" are the interface types it implements, so the ancestors of a
// concrete type T are the interface types known to the resolver that T
// implements. The empty interface is the universal root: every message is
// delivered to handlers declared for any.
//
// A type may implement several interfaces (the Go form of multiple
// inheritance). Ancestors returns their union without duplicates, in the order
// the interfaces became known, with the universal root last. The type itself is
// never part of the result; callers consult it separately.
//
// Resolvers never mutate what they return. Callers must not mutate it either:
// Cached hands the same slice to every caller.
package hierarchy
