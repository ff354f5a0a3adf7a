// Package domain contains the core types of the context aggregation engine:
// questions, source kinds, documents and chunks, sync checkpoints, and the
// context bundle handed to answer generation. Types here have no dependencies
// on adapters or external services.
package domain
