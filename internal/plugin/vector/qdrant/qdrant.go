package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adrianwedd/ltm-service/internal/config"
	registrymigrate "github.com/adrianwedd/ltm-service/internal/registry/migrate"
	registryvector "github.com/adrianwedd/ltm-service/internal/registry/vector"
)

// payloadField carries the full record JSON so a search result can be
// reconstructed without a second hop.
const payloadField = "record"

const scrollBatchSize = 256

// qdrantMigrator implements migrate.Migrator for Qdrant collection setup.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }

func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(qdrantAddress(cfg), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	dim := effectiveDimension(cfg)
	for _, collection := range []string{registryvector.CollectionEpisodic, registryvector.CollectionSkills} {
		name := collectionName(cfg, collection)
		if _, err := client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
			continue
		}
		_, err := client.Create(migrateCtx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     dim,
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("qdrant migrate: create collection %s: %w", name, err)
		}
		log.Info("Created Qdrant collection", "name", name, "dimension", dim)
	}
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(qdrantAddress(cfg), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		points: pb.NewPointsClient(conn),
		conn:   conn,
		prefix: cfg.QdrantCollectionPrefix,
	}, nil
}

// Store is the Qdrant-backed vector store.
type Store struct {
	points pb.PointsClient
	conn   *grpc.ClientConn
	prefix string
}

func (s *Store) Name() string { return "qdrant" }

func (s *Store) collection(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "_" + name
}

func (s *Store) Upsert(ctx context.Context, collection string, docs []registryvector.Document) error {
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload, err := json.Marshal(d.Payload)
		if err != nil {
			return fmt.Errorf("qdrant: marshal payload for %s: %w", d.ID, err)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: d.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				payloadField: {Kind: &pb.Value_StringValue{StringValue: string(payload)}},
			},
		}
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection(collection),
		Points:         points,
	})
	return err
}

func (s *Store) Search(ctx context.Context, collection string, embedding []float32, limit int) ([]registryvector.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection(collection),
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	results := make([]registryvector.SearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		r := registryvector.SearchResult{
			ID:    pt.GetId().GetUuid(),
			Score: float64(pt.GetScore()),
		}
		if v, ok := pt.GetPayload()[payloadField]; ok {
			_ = json.Unmarshal([]byte(v.GetStringValue()), &r.Payload)
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Store) Scroll(ctx context.Context, collection string) ([]registryvector.Document, error) {
	var docs []registryvector.Document
	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection(collection),
			Limit:          ptrUint32(scrollBatchSize),
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, err
		}
		for _, pt := range resp.GetResult() {
			d := registryvector.Document{ID: pt.GetId().GetUuid()}
			if vec := pt.GetVectors().GetVector(); vec != nil {
				d.Embedding = vec.GetData()
			}
			if v, ok := pt.GetPayload()[payloadField]; ok {
				_ = json.Unmarshal([]byte(v.GetStringValue()), &d.Payload)
			}
			docs = append(docs, d)
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return docs, nil
		}
	}
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		points[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection(collection),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: points},
			},
		},
	})
	return err
}

func ptrUint32(v uint32) *uint32 {
	return &v
}

func qdrantAddress(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.QdrantHost, cfg.QdrantPort)
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func effectiveDimension(cfg *config.Config) uint64 {
	if cfg.EmbedDimension > 0 {
		return uint64(cfg.EmbedDimension)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "openai":
		return 1536
	default:
		return 384
	}
}

func collectionName(cfg *config.Config, collection string) string {
	if cfg.QdrantCollectionPrefix == "" {
		return collection
	}
	return cfg.QdrantCollectionPrefix + "_" + collection
}

var _ registryvector.VectorStore = (*Store)(nil)
