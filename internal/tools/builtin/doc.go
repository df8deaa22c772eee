// Package builtin provides the tools that ship with every deployment:
// thread search and a store record lookup, one schema-explicit and one
// schema-derived, as reference shapes for tools registered by plugins.
package builtin
