// Package crawler holds the data model, ports and error taxonomy shared by the
// catalog crawl pipeline. Concrete fetchers, extractors, stores and transports
// live in sibling packages and depend on this one, never the other way round.
package crawler
