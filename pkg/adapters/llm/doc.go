// Package llm groups the completion.Backend implementations.
//
// Each subpackage wraps one provider SDK. Backends perform exactly one call per
// Complete; retries, prompts and parsing belong to completion.Client.
package llm
