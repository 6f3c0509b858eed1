package evaluator

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/model"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/respond"
	"github.com/adrianwedd/ltm-service/internal/security"
)

// MountRoutes mounts the evaluator critique endpoints.
func MountRoutes(r *gin.Engine, evaluator *ltmmemory.EvaluatorMemory) {
	r.POST("/evaluator_memory", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		store(c, evaluator)
	})
	r.GET("/evaluator_memory", security.RequireRole(security.RoleViewer, security.RoleEditor), func(c *gin.Context) {
		retrieve(c, evaluator)
	})
	r.DELETE("/forget_evaluator", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		forget(c, evaluator)
	})
}

type storeRequest struct {
	Payload      any               `json:"critique_payload"`
	QueryContext any               `json:"query_context"`
	Provenance   *model.Provenance `json:"provenance"`
}

func store(c *gin.Context, evaluator *ltmmemory.EvaluatorMemory) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}

	prov := model.Provenance{Source: c.GetString(security.ContextKeyRole)}
	if req.Provenance != nil {
		prov = *req.Provenance
	}
	id, err := evaluator.Store(c.Request.Context(), req.Payload, req.QueryContext, prov)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type retrieveRequest struct {
	Query any `json:"query"`
}

func retrieve(c *gin.Context, evaluator *ltmmemory.EvaluatorMemory) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respond.Error(c, &model.ValidationError{Field: "limit", Message: "must be an integer"})
			return
		}
		limit = parsed
	}

	var req retrieveRequest
	if err := bindOptionalBody(c, &req); err != nil {
		respond.BindError(c, "body", err)
		return
	}

	critiques, err := evaluator.Retrieve(c.Request.Context(), req.Query, limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": critiques})
}

func forget(c *gin.Context, evaluator *ltmmemory.EvaluatorMemory) {
	var pred ltmmemory.EvaluatorForgetPredicate
	if err := c.ShouldBindJSON(&pred); err != nil && !errors.Is(err, io.EOF) {
		respond.BindError(c, "body", err)
		return
	}
	removed, err := evaluator.Forget(c.Request.Context(), pred)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func bindOptionalBody(c *gin.Context, dst any) error {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
