// Package tools is the ToolRegistry: schema-explicit tools that
// provide their own JSON schema and entrypoint, schema-derived tools
// whose schema is reflected off a typed Go parameter struct, and the
// R2R adapter that exposes every invocation as a uniform lazy stream
// of progress values followed by exactly one final value.
package tools
