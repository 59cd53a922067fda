// Package config loads, normalizes, and validates classifier configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as VOYAGEAI_API_KEY,
// PINECONE_API_KEY and PINECONE_HOST. Callers get thresholds, store backend,
// embedding and logging settings from one validated Config.
package config
