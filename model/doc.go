// Package model abstracts the external text-completion collaborator behind
// the CompletionModel interface. It ships a deterministic MockModel for
// tests, a CachedModel decorator with content-hash keyed LRU caching, and
// provider adapters for Anthropic and OpenAI in sub-packages.
package model
