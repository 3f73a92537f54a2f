// Package nodes contains the built-in node types and the process-wide
// registry built from them.
package nodes
