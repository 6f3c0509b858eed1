package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/adrianwedd/ltm-service/internal/config"
	"github.com/adrianwedd/ltm-service/internal/model"
	graphmemory "github.com/adrianwedd/ltm-service/internal/plugin/graph/memory"
	registrygraph "github.com/adrianwedd/ltm-service/internal/registry/graph"
)

func init() {
	registrygraph.Register(registrygraph.Plugin{
		Name:   "neo4j",
		Loader: load,
	})
}

func load(ctx context.Context) (registrygraph.GraphStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.Neo4jURI == "" {
		return nil, fmt.Errorf("neo4j: NEO4J_URI is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j: connect: %w", err)
	}
	return &Store{driver: driver}, nil
}

// Store is the Neo4j-backed graph store. Entity nodes are keyed by name;
// relations are RELATION edges keyed by (subject, predicate, object) via
// MERGE, so re-writing a triple never duplicates it. Temporal facts live in
// a parallel TemporalFact node set.
type Store struct {
	driver neo4j.DriverWithContext
}

func (s *Store) Name() string { return "neo4j" }

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

const mergeRelationCypher = `
MERGE (a:Entity {name: $subject})
MERGE (b:Entity {name: $object})
MERGE (a)-[r:RELATION {predicate: $predicate}]->(b)
ON CREATE SET r.id = $id, r.seq = timestamp()
SET r.confidence = coalesce($confidence, r.confidence)
RETURN r.id AS id`

func (s *Store) MergeEntity(ctx context.Context, name string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MERGE (e:Entity {name: $name})`, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *Store) MergeRelation(ctx context.Context, rel registrygraph.Relation) (string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	id, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return mergeRelationTx(ctx, tx, rel)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

func mergeRelationTx(ctx context.Context, tx neo4j.ManagedTransaction, rel registrygraph.Relation) (string, error) {
	params := map[string]any{
		"subject":    rel.Subject,
		"predicate":  rel.Predicate,
		"object":     rel.Object,
		"id":         graphmemory.RelationID(rel.Subject, rel.Predicate, rel.Object),
		"confidence": nil,
	}
	if rel.Confidence != nil {
		params["confidence"] = *rel.Confidence
	}
	res, err := tx.Run(ctx, mergeRelationCypher, params)
	if err != nil {
		return "", err
	}
	record, err := res.Single(ctx)
	if err != nil {
		return "", err
	}
	id, _ := record.Get("id")
	return id.(string), nil
}

func (s *Store) MergeSubgraph(ctx context.Context, entities []registrygraph.Entity, relations []registrygraph.Relation) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// One managed transaction: the driver rolls everything back if any
	// statement fails, so partial subgraphs are never observable.
	ids, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range entities {
			res, err := tx.Run(ctx, `MERGE (e:Entity {name: $name})`, map[string]any{"name": e.Name})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		out := make([]string, len(relations))
		for i, rel := range relations {
			id, err := mergeRelationTx(ctx, tx, rel)
			if err != nil {
				return nil, err
			}
			out[i] = id
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return ids.([]string), nil
}

func (s *Store) Relations(ctx context.Context, subject, predicate, object string) ([]registrygraph.StoredRelation, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Entity)-[r:RELATION]->(b:Entity)
WHERE ($subject = '' OR a.name = $subject)
  AND ($predicate = '' OR r.predicate = $predicate)
  AND ($object = '' OR b.name = $object)
RETURN r.id AS id, a.name AS subject, r.predicate AS predicate, b.name AS object,
       r.confidence AS confidence, r.seq AS seq
ORDER BY coalesce(r.confidence, 0) DESC, r.seq ASC`,
			map[string]any{"subject": subject, "predicate": predicate, "object": object})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records := rows.([]*neo4j.Record)
	out := make([]registrygraph.StoredRelation, 0, len(records))
	for _, rec := range records {
		m := rec.AsMap()
		rel := registrygraph.StoredRelation{
			ID:        asString(m["id"]),
			Subject:   asString(m["subject"]),
			Predicate: asString(m["predicate"]),
			Object:    asString(m["object"]),
		}
		if c, ok := m["confidence"].(float64); ok {
			rel.Confidence = &c
		}
		if seq, ok := m["seq"].(int64); ok {
			rel.Seq = seq
		}
		out = append(out, rel)
	}
	return out, nil
}

func (s *Store) Run(ctx context.Context, statement string) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	rows, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, statement, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records := rows.([]*neo4j.Record)
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec.AsMap()
	}
	return out, nil
}

func (s *Store) AppendFact(ctx context.Context, fact model.TemporalFact) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	params := map[string]any{
		"id":               fact.ID,
		"subject":          fact.Subject,
		"predicate":        fact.Predicate,
		"object":           fact.Object,
		"value":            nil,
		"lon":              nil,
		"lat":              nil,
		"valid_from":       fact.ValidFrom,
		"valid_to":         nil,
		"tx_time":          fact.TxTime,
		"prov_source":      fact.Provenance.Source,
		"prov_recorded_at": fact.Provenance.RecordedAt,
	}
	if fact.Value != nil {
		params["value"] = *fact.Value
	}
	if fact.Location != nil {
		params["lon"] = fact.Location.Lon
		params["lat"] = fact.Location.Lat
	}
	if fact.ValidTo != nil {
		params["valid_to"] = *fact.ValidTo
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
CREATE (f:TemporalFact {
  id: $id, subject: $subject, predicate: $predicate, object: $object,
  value: $value, lon: $lon, lat: $lat,
  valid_from: $valid_from, valid_to: $valid_to, tx_time: $tx_time,
  prov_source: $prov_source, prov_recorded_at: $prov_recorded_at
})`, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *Store) Facts(ctx context.Context, subject, predicate string) ([]model.TemporalFact, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (f:TemporalFact)
WHERE ($subject = '' OR f.subject = $subject)
  AND ($predicate = '' OR f.predicate = $predicate)
RETURN f`, map[string]any{"subject": subject, "predicate": predicate})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records := rows.([]*neo4j.Record)
	out := make([]model.TemporalFact, 0, len(records))
	for _, rec := range records {
		node, ok := rec.Values[0].(neo4j.Node)
		if !ok {
			continue
		}
		out = append(out, factFromProps(node.Props))
	}
	return out, nil
}

func factFromProps(props map[string]any) model.TemporalFact {
	f := model.TemporalFact{
		ID:        asString(props["id"]),
		Subject:   asString(props["subject"]),
		Predicate: asString(props["predicate"]),
		Object:    asString(props["object"]),
	}
	if v, ok := props["value"].(string); ok {
		f.Value = &v
	}
	lon, lonOK := props["lon"].(float64)
	lat, latOK := props["lat"].(float64)
	if lonOK && latOK {
		f.Location = &model.GeoPoint{Lon: lon, Lat: lat}
	}
	f.ValidFrom, _ = props["valid_from"].(float64)
	if v, ok := props["valid_to"].(float64); ok {
		f.ValidTo = &v
	}
	f.TxTime, _ = props["tx_time"].(float64)
	f.Provenance.Source = asString(props["prov_source"])
	f.Provenance.RecordedAt, _ = props["prov_recorded_at"].(float64)
	return f
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

var _ registrygraph.GraphStore = (*Store)(nil)
