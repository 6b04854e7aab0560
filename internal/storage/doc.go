// Package storage is a small document store addressed by slash-separated
// paths, in the shape of a hierarchical document database:
//
//	artifacts/{app}/users/{uid}/settings/night_mode
//	└── collection ────────────────────┘ └─ doc id ┘
//
// A document path has an even number of segments, a collection path an odd
// number. Documents are JSON objects. Every driver supports a
// collection-group scan: all documents whose immediate collection has a given
// name, regardless of parent.
//
// Drivers:
//   - "sqlite": one row per document (modernc.org/sqlite)
//   - "file":   in-memory map persisted as a JSON-lines journal plus snapshot
//   - "memory": in-memory map, nothing persisted
package storage
