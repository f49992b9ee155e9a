// Package pending answers "what did I close that still needs follow-up".
//
// View is the one-shot query; LiveView keeps a snapshot current by
// refetching the whole list whenever the rooms or messages table changes.
// Events carry no payload, so a full resync per event keeps duplicate and
// coalesced delivery harmless.
package pending
