/*
Package dsl provides a fluent builder for module graphs.

It lets tests and embedders declare which modules import which, and which ones
accept their own updates, without spelling out both edge directions by hand.

Example usage:

	b := dsl.New()
	b.Add("App").Imports("Counter", "format")
	b.Add("Counter").AcceptsSelf().Imports("format")
	b.Add("format")

	records, err := b.Build()
	// ... pass records to hotswap.WithModules(records...)

	entry, err := b.Bump("Counter")
	// ... coordinator.Enqueue(ctx, domain.UpdatePacket{Modules: []domain.PacketEntry{entry}})
*/
package dsl
