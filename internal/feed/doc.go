// Package feed delivers change notifications from the store to interested
// consumers.
//
// The store publishes a table-keyed invalidation after every committed
// mutation. Bridge turns those into per-subscriber callbacks: Subscribe
// registers a callback for one table, Notify wakes every subscriber of that
// table, and Subscription.Cancel stops delivery with the guarantee that the
// callback never runs after Cancel returns.
//
// Deliveries carry no payload. Consumers are expected to resync their full
// snapshot from the store on every callback, which makes delivery idempotent
// and lets the bridge coalesce bursts: N changes during one callback collapse
// into a single follow-up invocation.
//
// Relay extends the feed across processes. It republishes local invalidations
// to an AMQP topic exchange (routing key change.<table>) and injects remote
// ones back into the local bridge, filtering its own echoes by origin ID.
// The relay is optional; a single-process deployment wires the store straight
// to the bridge.
package feed
