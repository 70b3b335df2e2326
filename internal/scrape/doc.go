// Package scrape defines the core types and interfaces shared by the
// fetch-and-extract pipeline: requests, results, the strategy contract,
// and the closed error taxonomy produced at strategy boundaries.
package scrape
