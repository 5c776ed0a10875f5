// Package listener extracts handler metadata from listener types.
//
// A listener is any comparable value exposing one or more handlers. Each
// handler accepts exactly one message type and carries a dispatch priority.
// The bus never inspects listeners itself; it asks a Reader for the Handler
// descriptors of a listener type once and shares them, read-only, across every
// instance of that type.
//
// Two readers are provided:
//
//   - MethodReader discovers handlers by reflection over exported methods
//     with a name prefix (Handle by default):
//
//     type Audit struct{}
//
//     func (a *Audit) HandleOrder(o OrderPlaced) error { ... }
//     func (a *Audit) HandleAll(ctx context.Context, m any) { ... }
//
//   - Table binds handlers explicitly, with no reflection at dispatch time:
//
//     t := listener.NewTable()
//     listener.Bind(t, "order", (*Audit).OnOrder, listener.WithPriority(10))
//
// Chain combines readers; the first one that knows a type wins.
package listener
