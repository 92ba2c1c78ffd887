package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type serviceInfoWire struct {
	Tag        string   `json:"tag"`
	Aliases    []string `json:"aliases,omitempty"`
	Geofence   []string `json:"geofence,omitempty"`
	TitleRegex []string `json:"title_regex,omitempty"`
	Help       string   `json:"help,omitempty"`
}

// Services handles GET /api/services, listing every locally-registered
// adapter with the metadata a CLI client needs to pick one.
func (d *Deps) Services(c *gin.Context) {
	descriptors := d.Registry.Descriptors()
	out := make([]serviceInfoWire, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, serviceInfoWire{
			Tag: desc.Tag, Aliases: desc.Aliases, Geofence: desc.Geofence,
			TitleRegex: desc.TitleRegex, Help: desc.Help,
		})
	}
	c.JSON(http.StatusOK, gin.H{"services": out})
}

// RemoteServices handles GET /api/remote/services, the discovery endpoint
// a Service Registry queries on another server to learn its adapter tags.
func (d *Deps) RemoteServices(c *gin.Context) {
	descriptors := d.Registry.Descriptors()
	out := make([]serviceInfoWire, 0, len(descriptors))
	for _, desc := range descriptors {
		out = append(out, serviceInfoWire{
			Tag: desc.Tag, Aliases: desc.Aliases, Geofence: desc.Geofence, Help: desc.Help,
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "services": out})
}
