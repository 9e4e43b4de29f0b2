// Package core defines the data model shared by the afdata search, enrichment and output packages.
//
// # Overview
//
// A run starts from a Query (an immutable filter tree rendered in the AutoFocus search DSL),
// which is submitted once to obtain a SearchToken. Each poll against that token yields a
// ResultPage whose hits are turned into EnrichedRecords and accumulated in a RunState.
//
// The RunState is passed explicitly through every stage of a run:
//   - the search Runner threads one RunState across all input chunks
//   - the sink writes the bulk stream and the pretty snapshot from it
//   - the signature-coverage pass mutates its records in place
//
// Nothing in this package performs I/O.
package core
