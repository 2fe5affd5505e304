// package wire contains implementations to requirements on *message syntaxes*
// defined by http related RFCs, for HTTP/1.1 only:
//
//	HTTP Semantics (RFC9110)
//	HTTP/1.1 (RFC9112)
//
// HTTP/2 framing is left to golang.org/x/net/http2.
package wire
