package router

import (
	"github.com/launchlens/launch-lens/internal/module/launch"
)

type Router struct {
	LaunchRouter *launch.LaunchRouter
}

func NewRouter(
	launchRouter *launch.LaunchRouter,
) *Router {
	return &Router{
		LaunchRouter: launchRouter,
	}
}

// Register routes
func (r *Router) Register() {
	// Register routes of modules
	r.LaunchRouter.RegisterLaunchRoutes()
}
