package routes

import (
	"github.com/vango-go/vango"

	"helper_chat/app/routes/api"
)

// Register mounts the route tree on the app. Kept by hand in place of
// generated route bindings.
func Register(app *vango.App) {
	app.Layout("/", Layout)
	app.Page("/", IndexPage)
	app.API("GET", "/api/health", api.HealthGET)
}
