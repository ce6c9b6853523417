package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router mounts domain groups under the versioned API prefix. Each mount carries its
// own middleware chain, so webhook and operator routes can share the prefix.
type Router struct {
	api *gin.RouterGroup
}

// NewRouter creates a router rooted at /api/<version>
func NewRouter(engine *gin.Engine, version string) *Router {
	return &Router{api: engine.Group("/api/" + version)}
}

// Mount registers groups behind the given middleware
func (r *Router) Mount(middleware []gin.HandlerFunc, groups ...*DomainGroup) {
	rg := r.api.Group("", middleware...)
	for _, g := range groups {
		g.register(rg)
	}
}

// DomainGroup collects the routes of one API area before they are mounted
type DomainGroup struct {
	prefix     string
	routes     []route
	middleware []gin.HandlerFunc
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a group for the routes under prefix
func NewDomainGroup(prefix string) *DomainGroup {
	return &DomainGroup{prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a read route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.add(http.MethodGet, path, handlers)
}

// POST registers a write route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.add(http.MethodPost, path, handlers)
}

// PATCH registers a write route
func (dg *DomainGroup) PATCH(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.add(http.MethodPatch, path, handlers)
}

func (dg *DomainGroup) add(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, route{method: method, path: path, handlers: handlers})
	return dg
}

func (dg *DomainGroup) register(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, r := range dg.routes {
		group.Handle(r.method, r.path, r.handlers...)
	}
}
