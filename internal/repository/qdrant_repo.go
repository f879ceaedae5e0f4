package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/engelke/fashion-hack-2024/internal/domain"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1024
)

// QdrantConnectionConfig holds connection settings for Qdrant.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository stores one attribute-description vector per image.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a gRPC client for the configured collection.
// The connection is lazy; no request is made until first use.
// Parameters:
//   - cfg: connection settings including host, port, collection and vector size.
// Returns:
//   - *QdrantRepository: repository bound to the collection.
//   - error: non-nil if the client cannot be created.
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	// Qdrant Cloud requires TLS 1.3 whenever an API key is used
	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks
// the vector size of an existing one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil if the collection cannot be created or has another vector size.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	// Check if collection exists
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil // Collection exists
	}

	// Create collection
	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	for _, key := range domain.AttributeKeys {
		_, err := r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collectionName,
			FieldName:      key,
			FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create %s index: %w", key, err)
		}
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// AttributePayload is stored with each image vector.
type AttributePayload struct {
	ImageID     string
	ImageURL    string
	Description string
	Attributes  domain.Attributes
}

// Upsert inserts or replaces the vector of one image.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - pointID: image id, which must be a UUID.
//   - vector: description embedding.
//   - payload: attributes stored with the point.
// Returns:
//   - error: non-nil if the id is invalid or the request fails.
func (r *QdrantRepository) Upsert(ctx context.Context, pointID string, vector []float32, payload *AttributePayload) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	fields := map[string]*pb.Value{
		"image_id":    stringValue(payload.ImageID),
		"image_url":   stringValue(payload.ImageURL),
		"description": stringValue(payload.Description),
	}
	for _, key := range domain.AttributeKeys {
		fields[key] = stringValue(strings.ToLower(payload.Attributes.Get(key)))
	}

	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			Payload: fields,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// SearchResult is one scored hit from Qdrant.
type SearchResult struct {
	ID      string
	Score   float32
	Payload *AttributePayload
}

// SearchFilters restricts hits to exact attribute values, keyed by attribute
// name (clothing_type, color, ...). Values compare case-insensitively.
type SearchFilters map[string]string

// Search performs a vector similarity search.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - vector: query embedding.
//   - topK: maximum number of hits.
//   - filters: exact-match attribute filters.
// Returns:
//   - []SearchResult: hits ordered by score.
//   - error: non-nil if the request fails.
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int, filters SearchFilters) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter:         buildFilter(filters),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, scored := range resp.GetResult() {
		results[i] = SearchResult{
			ID:      scored.GetId().GetUuid(),
			Score:   scored.GetScore(),
			Payload: parsePayload(scored.GetPayload()),
		}
	}
	return results, nil
}

func buildFilter(filters SearchFilters) *pb.Filter {
	var conditions []*pb.Condition
	for _, key := range domain.AttributeKeys {
		value := strings.TrimSpace(filters[key])
		if value == "" {
			continue
		}
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   key,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: strings.ToLower(value)}},
				},
			},
		})
	}
	if len(conditions) == 0 {
		return nil
	}
	return &pb.Filter{Must: conditions}
}

func parsePayload(payload map[string]*pb.Value) *AttributePayload {
	if payload == nil {
		return nil
	}
	p := &AttributePayload{
		ImageID:     payload["image_id"].GetStringValue(),
		ImageURL:    payload["image_url"].GetStringValue(),
		Description: payload["description"].GetStringValue(),
	}
	for _, key := range domain.AttributeKeys {
		p.Attributes.Set(key, payload[key].GetStringValue())
	}
	return p
}
