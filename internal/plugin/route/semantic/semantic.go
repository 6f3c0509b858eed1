package semantic

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/model"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/respond"
	"github.com/adrianwedd/ltm-service/internal/security"
)

// MountRoutes mounts the semantic consolidation endpoints.
func MountRoutes(r *gin.Engine, semantic *ltmmemory.SemanticMemory) {
	r.POST("/semantic_consolidate", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		consolidate(c, semantic)
	})
	r.POST("/propagate_subgraph", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		propagateSubgraph(c, semantic)
	})
}

type consolidateRequest struct {
	Payload    any               `json:"payload"`
	Format     string            `json:"format"`
	Provenance *model.Provenance `json:"provenance"`
}

func consolidate(c *gin.Context, semantic *ltmmemory.SemanticMemory) {
	var req consolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}
	if req.Payload == nil {
		respond.Error(c, &model.ValidationError{Field: "payload", Message: "is required"})
		return
	}

	prov := provenanceOrRole(c, req.Provenance)
	result, err := semantic.Consolidate(c.Request.Context(), req.Payload, req.Format, prov)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

type propagateRequest struct {
	Entities   []map[string]any  `json:"entities"`
	Relations  []map[string]any  `json:"relations"`
	Provenance *model.Provenance `json:"provenance"`
}

func propagateSubgraph(c *gin.Context, semantic *ltmmemory.SemanticMemory) {
	var req propagateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}
	if len(req.Relations) == 0 {
		respond.Error(c, &model.ValidationError{Field: "relations", Message: "must be non-empty"})
		return
	}

	prov := provenanceOrRole(c, req.Provenance)
	ids, err := semantic.PropagateSubgraph(c.Request.Context(), req.Entities, req.Relations, prov)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func provenanceOrRole(c *gin.Context, prov *model.Provenance) model.Provenance {
	if prov != nil {
		return *prov
	}
	return model.Provenance{Source: c.GetString(security.ContextKeyRole)}
}
