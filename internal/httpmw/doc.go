// Package httpmw holds the middleware wrapped around the public router.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP, tracing, trace response headers,
// metrics, request logger, then the chi router with route annotation and
// access logging inside it.
//
// Logs carry request metadata only. Query strings, bodies and user agents
// stay out of them since form traffic is personal data.
package httpmw
