package temporal

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/model"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/respond"
	"github.com/adrianwedd/ltm-service/internal/security"
)

// MountRoutes mounts the temporal consolidation and spatial query endpoints.
func MountRoutes(r *gin.Engine, temporal *ltmmemory.TemporalMemory) {
	r.POST("/temporal_consolidate", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		consolidate(c, temporal)
	})
	r.GET("/spatial_query", security.RequireRole(security.RoleViewer, security.RoleEditor), func(c *gin.Context) {
		spatialQuery(c, temporal)
	})
}

type consolidateRequest struct {
	Subject    string            `json:"subject"`
	Predicate  string            `json:"predicate"`
	Object     string            `json:"object"`
	Value      *string           `json:"value"`
	Location   *model.GeoPoint   `json:"location"`
	ValidFrom  float64           `json:"valid_from"`
	ValidTo    *float64          `json:"valid_to"`
	Provenance *model.Provenance `json:"provenance"`
}

func consolidate(c *gin.Context, temporal *ltmmemory.TemporalMemory) {
	var req consolidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}

	fact := model.TemporalFact{
		Subject:   req.Subject,
		Predicate: req.Predicate,
		Object:    req.Object,
		Value:     req.Value,
		Location:  req.Location,
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
	}
	if req.Provenance != nil {
		fact.Provenance = *req.Provenance
	}
	if fact.Provenance.Source == "" {
		fact.Provenance.Source = c.GetString(security.ContextKeyRole)
	}

	id, err := temporal.Consolidate(c.Request.Context(), fact)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func spatialQuery(c *gin.Context, temporal *ltmmemory.TemporalMemory) {
	bbox, err := parseBBox(c.Query("bbox"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	from, err := parseFloatParam(c, "valid_from")
	if err != nil {
		respond.Error(c, err)
		return
	}
	to, err := parseFloatParam(c, "valid_to")
	if err != nil {
		respond.Error(c, err)
		return
	}

	facts, err := temporal.SpatialQuery(c.Request.Context(), bbox, from, to)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": facts})
}

// parseBBox parses "min_lon,min_lat,max_lon,max_lat".
func parseBBox(raw string) (model.BoundingBox, error) {
	if raw == "" {
		return model.BoundingBox{}, &model.ValidationError{Field: "bbox", Message: "is required"}
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return model.BoundingBox{}, &model.ValidationError{Field: "bbox", Message: "must be min_lon,min_lat,max_lon,max_lat"}
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BoundingBox{}, &model.ValidationError{Field: "bbox", Message: "coordinates must be numbers"}
		}
		coords[i] = v
	}
	return model.BoundingBox{MinLon: coords[0], MinLat: coords[1], MaxLon: coords[2], MaxLat: coords[3]}, nil
}

func parseFloatParam(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, &model.ValidationError{Field: name, Message: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &model.ValidationError{Field: name, Message: "must be a number"}
	}
	return v, nil
}
