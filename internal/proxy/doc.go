// Package proxy relays HTTP requests to the vendor API through an
// intermediary, sidestepping the cross-origin restrictions that block
// calling it directly.
//
// Two proxy generations exist in the field and both are supported
// behind the one Transport interface:
//
//   - "query": the target URL and method travel as query parameters on
//     the proxy endpoint; the payload is the JSON body and auth headers
//     are forwarded as real request headers.
//   - "envelope": method, URL, payload and headers are packed into a
//     single body, with headers as raw "name: value" strings. The
//     legacy PHP deployment of this proxy expects form-urlencoded
//     bodies and is recognised by its URL.
//
// The variant is chosen once at construction from configuration; call
// sites never branch on it.
package proxy
