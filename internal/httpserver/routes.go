// Package httpserver hosts the engine's two ambient HTTP surfaces: a
// status endpoint and an attachment server, following this codebase's
// gin route-registration pattern.
package httpserver

import (
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aclr/agg-go/internal/chat"
	"github.com/aclr/agg-go/internal/storage"
)

type Route struct {
	Name   string
	Engine *gin.Engine
}

func (r *Route) Init(engine *gin.Engine) {
	r.Engine = engine
}

type allRoutes struct {
	log         *zap.Logger
	store       storage.Storage
	chatMetrics *chat.CollectorMetrics
	startTime   time.Time
	filesDir    string
}

// LoadMain registers every route that belongs on the main engine (today,
// just attachments — status is served on its own dedicated router via
// LoadStatusOnly, matching this codebase's split between a public surface
// and an operator-facing one).
func LoadMain(log *zap.Logger, r *gin.Engine, store storage.Storage, filesDir string) {
	log = log.Named("routes")
	defer log.Sugar().Info("Loaded main API routes")

	route := &Route{Name: "/", Engine: r}
	route.Init(r)
	all := &allRoutes{log: log, store: store, filesDir: filesDir}

	typ := reflect.TypeOf(all)
	val := reflect.ValueOf(all)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if method.Name == "LoadStatus" {
			continue // status only ever runs on its own dedicated router
		}
		method.Func.Call([]reflect.Value{val, reflect.ValueOf(route)})
	}
}

// LoadStatusOnly loads only the status route, on the dedicated status
// server's own router.
func LoadStatusOnly(log *zap.Logger, r *gin.Engine, chatMetrics *chat.CollectorMetrics, startTime time.Time) {
	log = log.Named("routes")
	defer log.Sugar().Info("Loaded status route")
	route := &Route{Name: "/", Engine: r}
	route.Init(r)
	all := &allRoutes{log: log, chatMetrics: chatMetrics, startTime: startTime}
	all.LoadStatus(route)
}
