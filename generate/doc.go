// Package generate is the sample data engine.
//
// A request is planned into fixed-size batches. Each batch renders a prompt,
// runs one inference call under a pool lease and extracts the JSON array the
// model produced. Batches whose output cannot be extracted are skipped; an
// inference failure aborts the whole request.
package generate
