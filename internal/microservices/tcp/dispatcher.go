package tcp

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	EndpointUppercase = "/api/"
	EndpointHello     = "/api/hello"

	HelloGreeting  = "Hello, my name is Eduard!"
	BadRequestText = "Bad request"
)

// Dispatcher maps a request to exactly one response, it never fails
type Dispatcher interface {
	Handle(req Request) Response
}

// RouteFunc produces the response for one endpoint
type RouteFunc func(req Request) Response

// Router dispatches on an exact endpoint match
// the table is fixed after construction => safe for concurrent use without locks
type Router struct {
	routes   map[string]RouteFunc
	fallback RouteFunc
}

// NewRouter builds a router over a copy of routes
// requests for unknown endpoints get a "Bad request" response
func NewRouter(routes map[string]RouteFunc) *Router {
	table := make(map[string]RouteFunc, len(routes))
	for endpoint, fn := range routes {
		table[endpoint] = fn
	}
	return &Router{
		routes:   table,
		fallback: badRequest,
	}
}

// NewDefaultRouter returns the router serving /api/ and /api/hello
func NewDefaultRouter() *Router {
	return NewRouter(map[string]RouteFunc{
		EndpointUppercase: uppercase,
		EndpointHello:     hello,
	})
}

func (r *Router) Handle(req Request) Response {
	if fn, ok := r.routes[req.Endpoint]; ok {
		return fn(req)
	}
	return r.fallback(req)
}

// cases.Caser holds state, build one per call
func uppercase(req Request) Response {
	return Response{Message: cases.Upper(language.Und).String(req.Message)}
}

func hello(Request) Response {
	return Response{Message: HelloGreeting}
}

func badRequest(Request) Response {
	return Response{Message: BadRequestText}
}
