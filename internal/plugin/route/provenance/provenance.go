package provenance

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/model"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/respond"
	"github.com/adrianwedd/ltm-service/internal/security"
)

// MountRoutes mounts the provenance lookup endpoint.
func MountRoutes(r *gin.Engine, tracker *ltmmemory.ProvenanceTracker) {
	r.GET("/provenance/:memory_type/:record_id",
		security.RequireRole(security.RoleViewer, security.RoleEditor),
		func(c *gin.Context) {
			lookup(c, tracker)
		})
}

func lookup(c *gin.Context, tracker *ltmmemory.ProvenanceTracker) {
	memoryType := c.Param("memory_type")
	if !model.IsMemoryType(memoryType) {
		respond.Error(c, &model.ValidationError{Field: "memory_type", Message: "unknown memory type"})
		return
	}
	recordID := c.Param("record_id")

	prov, err := tracker.Lookup(c.Request.Context(), memoryType, recordID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provenance": prov})
}
