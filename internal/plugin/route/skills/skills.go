package skills

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/model"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/respond"
	"github.com/adrianwedd/ltm-service/internal/security"
)

// MountRoutes mounts the procedural memory endpoints.
func MountRoutes(r *gin.Engine, procedural *ltmmemory.ProceduralMemory) {
	r.POST("/skill", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		storeSkill(c, procedural)
	})
	r.POST("/skill_vector_query", security.RequireRole(security.RoleViewer, security.RoleEditor), func(c *gin.Context) {
		vectorQuery(c, procedural)
	})
	r.POST("/skill_metadata_query", security.RequireRole(security.RoleViewer, security.RoleEditor), func(c *gin.Context) {
		metadataQuery(c, procedural)
	})
}

type storeSkillRequest struct {
	Policy         any               `json:"skill_policy"`
	Representation json.RawMessage   `json:"skill_representation"`
	Metadata       map[string]any    `json:"skill_metadata"`
	Provenance     *model.Provenance `json:"provenance"`
}

func storeSkill(c *gin.Context, procedural *ltmmemory.ProceduralMemory) {
	var req storeSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}
	if req.Policy == nil {
		respond.Error(c, &model.ValidationError{Field: "skill_policy", Message: "is required"})
		return
	}

	in := ltmmemory.SkillInput{
		Policy:   req.Policy,
		Metadata: req.Metadata,
	}
	if len(req.Representation) > 0 {
		// The representation is either text or a vector of dimension D.
		var asText string
		var asVector []float32
		if err := json.Unmarshal(req.Representation, &asText); err == nil {
			in.Text = asText
		} else if err := json.Unmarshal(req.Representation, &asVector); err == nil {
			in.Vector = asVector
		} else {
			respond.Error(c, &model.ValidationError{Field: "skill_representation", Message: "must be a string or an array of numbers"})
			return
		}
	}
	if req.Provenance != nil {
		in.Provenance = *req.Provenance
	}
	if in.Provenance.Source == "" {
		in.Provenance.Source = c.GetString(security.ContextKeyRole)
	}

	id, err := procedural.Store(c.Request.Context(), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type vectorQueryRequest struct {
	Query *model.Query `json:"query"`
	Limit int          `json:"limit"`
}

func vectorQuery(c *gin.Context, procedural *ltmmemory.ProceduralMemory) {
	var req vectorQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}
	if req.Query == nil {
		respond.Error(c, &model.ValidationError{Field: "query", Message: "is required"})
		return
	}

	skills, err := procedural.VectorQuery(c.Request.Context(), *req.Query, req.Limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": skills})
}

type metadataQueryRequest struct {
	Filter map[string]any `json:"filter"`
	Limit  int            `json:"limit"`
}

func metadataQuery(c *gin.Context, procedural *ltmmemory.ProceduralMemory) {
	var req metadataQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}

	skills, err := procedural.MetadataQuery(c.Request.Context(), req.Filter, req.Limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": skills})
}
