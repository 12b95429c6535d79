package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/fuelops/internal/api/v1"
	"github.com/gosuda/fuelops/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps v1.ArchivalDeps) {
	v1.RegisterArchivalRoutes(api, deps)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/archival", hub.ServeArchival)
}
