/*
Package hotswap is a hot module replacement coordinator for component-based UI runtimes.

When a bundler's dev server recompiles changed modules it hands the updated set to the
coordinator as an UpdatePacket. The coordinator decides, per update, whether to replace the
running component instances in place (preserving their state) or to force a full reload, and
it keeps a broken edit from crashing the rest of the running tree.

# Concept

The coordinator never renders. It drives the UI framework through the ports.Runtime port
(mount, teardown and a key-based state Handle) and reports every stage of an update cycle to
a ports.Transport. Updates go through four stages:

  - Sequencing: exactly one packet is in flight; packets arriving meanwhile are merged by
    module id (later version wins).
  - Decision: changed modules are walked up their dependents until a self-accepting module
    (a boundary) closes every path. Reaching the application root forces a reload.
  - Preservation: each instance under a boundary is snapshotted, torn down, reconstructed and
    has its state slots reinjected. Identity never changes.
  - Containment: a failing construction becomes a placeholder (optimistic mode), reverts to the
    last-known-good implementation, or escalates to a full reload.

# Usage

	rt := memory.NewRuntime()
	rt.Define("src/Counter.svelte", 1, memory.Component{Slots: slots})

	c, err := hotswap.New(rt,
		hotswap.WithTransport(transport),
		hotswap.WithModules(records...),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := c.Mount(ctx, "counter-1", "src/Counter.svelte", "", nil); err != nil {
		log.Fatal(err)
	}

	// Later, for every bundler update:
	err = c.Enqueue(ctx, packet)
*/
package hotswap
