package api

import (
	"expvar"
	"net/http"
	"sync"

	"droc/internal/buildinfo"
)

var publishOnce sync.Once

// DebugVarsHandler serves expvar with the build info and the active planner
// settings of the first server in the process.
func (s *Server) DebugVarsHandler() http.Handler {
	publishOnce.Do(func() {
		expvar.Publish("build", expvar.Func(func() any { return buildinfo.Info() }))
		planner := s.Config.Planner
		expvar.Publish("planner", expvar.Func(func() any { return planner }))
		expvar.Publish("store", expvar.Func(func() any {
			if s.Config.DatabaseURL != "" {
				return "postgres"
			}
			return "memory"
		}))
	})
	return expvar.Handler()
}
