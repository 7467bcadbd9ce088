// Package extract turns parsed catalog pages into product records.
//
// Strategies run in a fixed order and the first non-empty one wins:
// embedded JSON-LD, configured selectors, then a bounded generic pass.
// Image resolution and condition classification are applied to every
// record regardless of the strategy that produced it.
package extract
