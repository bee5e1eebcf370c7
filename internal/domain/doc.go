// Package domain defines the data model and collaborator contracts shared by
// the engines: CAIP chain and account identifiers, namespaces, pairings,
// proposals, sessions, CACAO objects, JSON-RPC wire types, and the storage,
// relay and chain-call interfaces. It also owns the typed error taxonomy.
//
// Plain types live in domain/types and interfaces in domain/interfaces; this
// package re-exports both so callers import a single path.
package domain
