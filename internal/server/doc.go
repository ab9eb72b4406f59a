// Package server exposes the proxy pipeline over HTTP using gin.
//
// Routes:
//
//	ANY  /proxy/*path  forward the request to the route registered for /path
//	POST /invoke       run a JSON event and return the response envelope
//	GET  /routes       list the configured route table
package server
