// Package mcpserver exposes the memo store to tool-calling clients over
// line-delimited JSON-RPC 2.0.
//
// The server answers the initialize handshake, lists the memo tools with
// their input schemas and dispatches tools/call requests to a Service.
// Requests other than initialize and ping are rejected until the client
// has initialized. Tool arguments are validated against each tool's JSON
// schema before the store is touched.
package mcpserver
