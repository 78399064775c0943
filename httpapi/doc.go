// Package httpapi is the HTTP gateway in front of the session engine. It
// translates requests into engine calls and engine errors into status
// codes, and owns the cookie conventions: the refresh token lives in an
// HttpOnly cookie scoped to the auth endpoints, never in a response body.
package httpapi
