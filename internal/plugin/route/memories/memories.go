package memories

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	ltmmemory "github.com/adrianwedd/ltm-service/internal/memory"
	"github.com/adrianwedd/ltm-service/internal/model"
	"github.com/adrianwedd/ltm-service/internal/plugin/route/respond"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
	"github.com/adrianwedd/ltm-service/internal/security"
)

// Modules bundles the memory modules the /memory surface dispatches to.
type Modules struct {
	Episodic   *ltmmemory.EpisodicMemory
	Semantic   *ltmmemory.SemanticMemory
	Temporal   *ltmmemory.TemporalMemory
	Procedural *ltmmemory.ProceduralMemory
	Evaluator  *ltmmemory.EvaluatorMemory
}

// MountRoutes mounts the episodic write path, the cross-module retrieval
// surface, and the episodic forget endpoint.
func MountRoutes(r *gin.Engine, modules Modules) {
	r.POST("/memory", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		postMemory(c, modules)
	})
	r.GET("/memory", security.RequireRole(security.RoleViewer, security.RoleEditor), func(c *gin.Context) {
		getMemory(c, modules)
	})
	r.DELETE("/forget", security.RequireRole(security.RoleEditor), func(c *gin.Context) {
		deleteForget(c, modules)
	})
}

type postMemoryRequest struct {
	Record     json.RawMessage `json:"record"`
	MemoryType string          `json:"memory_type"`
}

type episodicRecordBody struct {
	TaskQuery  string            `json:"task_query"`
	Outcome    string            `json:"outcome"`
	Plan       any               `json:"plan"`
	Score      float64           `json:"score"`
	Provenance *model.Provenance `json:"provenance"`
}

func postMemory(c *gin.Context, modules Modules) {
	var req postMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BindError(c, "body", err)
		return
	}
	if req.MemoryType == "" {
		req.MemoryType = model.MemoryTypeEpisodic
	}
	if req.MemoryType != model.MemoryTypeEpisodic {
		respond.Error(c, &model.ValidationError{
			Field:   "memory_type",
			Message: "only episodic records are written here; other memory types have dedicated consolidation endpoints",
		})
		return
	}
	if len(req.Record) == 0 {
		respond.Error(c, &model.ValidationError{Field: "record", Message: "is required"})
		return
	}

	var body episodicRecordBody
	dec := json.NewDecoder(bytes.NewReader(req.Record))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		respond.BindError(c, "record", err)
		return
	}

	rec := model.EpisodicRecord{
		TaskQuery: body.TaskQuery,
		Outcome:   body.Outcome,
		Plan:      body.Plan,
		Score:     body.Score,
	}
	if body.Provenance != nil {
		rec.Provenance = *body.Provenance
	}
	if rec.Provenance.Source == "" {
		rec.Provenance.Source = c.GetString(security.ContextKeyRole)
	}

	id, err := modules.Episodic.Consolidate(c.Request.Context(), rec)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type retrieveRequest struct {
	Query *model.Query `json:"query"`
	// TaskContext is a deprecated alias of Query kept for older producers.
	TaskContext *model.Query `json:"task_context"`
}

func getMemory(c *gin.Context, modules Modules) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	var req retrieveRequest
	if err := bindOptionalBody(c, &req); err != nil {
		respond.BindError(c, "body", err)
		return
	}
	query := req.Query
	if query == nil {
		query = req.TaskContext
	}
	if query == nil {
		respond.Error(c, &model.ValidationError{Field: "query", Message: "is required"})
		return
	}

	ctx := c.Request.Context()
	memoryType := c.DefaultQuery("memory_type", model.MemoryTypeEpisodic)
	switch memoryType {
	case model.MemoryTypeEpisodic:
		records, err := modules.Episodic.Retrieve(ctx, *query, limit)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": records})
	case model.MemoryTypeSemantic:
		if query.Kind != model.QueryMetadata {
			respond.Error(c, &model.ValidationError{Field: "query", Message: "semantic queries are a mapping over subject, predicate, object"})
			return
		}
		rels, err := modules.Semantic.Retrieve(ctx, query.Metadata, limit)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": relationsToResults(rels)})
	case model.MemoryTypeTemporal:
		facts, err := temporalSnapshot(c, modules, query)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": facts})
	case model.MemoryTypeProcedural:
		skills, err := modules.Procedural.VectorQuery(ctx, *query, limit)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": skills})
	case model.MemoryTypeEvaluator:
		critiques, err := modules.Evaluator.Retrieve(ctx, queryContext(query), limit)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": critiques})
	default:
		respond.Error(c, &model.ValidationError{Field: "memory_type", Message: "unknown memory type"})
	}
}

// temporalSnapshot answers a bitemporal snapshot query expressed as
// {valid_at, tx_at?, pairs: [{subject, predicate}]}.
func temporalSnapshot(c *gin.Context, modules Modules, query *model.Query) ([]model.TemporalFact, error) {
	if query.Kind != model.QueryMetadata {
		return nil, &model.ValidationError{Field: "query", Message: "temporal queries are a mapping with valid_at, tx_at, and pairs"}
	}
	m := query.Metadata
	validAt, ok := m["valid_at"].(float64)
	if !ok {
		return nil, &model.ValidationError{Field: "query.valid_at", Message: "must be a number"}
	}
	// tx_at defaults to the present: answer from everything written so far.
	txAt := float64(time.Now().UnixNano()) / 1e9
	if raw, ok := m["tx_at"]; ok {
		txAt, ok = raw.(float64)
		if !ok {
			return nil, &model.ValidationError{Field: "query.tx_at", Message: "must be a number"}
		}
	}
	rawPairs, ok := m["pairs"].([]any)
	if !ok {
		return nil, &model.ValidationError{Field: "query.pairs", Message: "must be an array of {subject, predicate}"}
	}
	pairs := make([]ltmmemory.PairFilter, len(rawPairs))
	for i, raw := range rawPairs {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &model.ValidationError{Field: "query.pairs", Message: "must be an array of {subject, predicate}"}
		}
		subject, _ := obj["subject"].(string)
		predicate, _ := obj["predicate"].(string)
		pairs[i] = ltmmemory.PairFilter{Subject: subject, Predicate: predicate}
	}
	return modules.Temporal.Snapshot(c.Request.Context(), validAt, txAt, pairs)
}

func queryContext(query *model.Query) any {
	switch query.Kind {
	case model.QueryText:
		return query.Text
	case model.QueryMetadata:
		return query.Metadata
	default:
		return query.Vector
	}
}

func relationsToResults(rels []registrygraph.StoredRelation) []map[string]any {
	out := make([]map[string]any, len(rels))
	for i, rel := range rels {
		row := map[string]any{
			"id":        rel.ID,
			"subject":   rel.Subject,
			"predicate": rel.Predicate,
			"object":    rel.Object,
		}
		if rel.Confidence != nil {
			row["confidence"] = *rel.Confidence
		}
		out[i] = row
	}
	return out
}

func deleteForget(c *gin.Context, modules Modules) {
	var pred model.ForgetPredicate
	if err := c.ShouldBindJSON(&pred); err != nil && !errors.Is(err, io.EOF) {
		respond.BindError(c, "body", err)
		return
	}
	removed, err := modules.Episodic.Forget(c.Request.Context(), pred)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// parseLimit reads the limit query parameter; 0 means unset and module
// defaults apply. Any other value outside [1, 50] is rejected here.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		respond.Error(c, &model.ValidationError{Field: "limit", Message: "must be an integer"})
		return 0, false
	}
	if _, err := model.NormalizeLimit(limit); err != nil {
		respond.Error(c, err)
		return 0, false
	}
	return limit, true
}

// bindOptionalBody decodes a JSON body when one is present; an empty body
// leaves dst untouched.
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
