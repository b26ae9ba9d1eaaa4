package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/docidx/internal/schema"
	"github.com/fyrsmithlabs/docidx/internal/scope"
)

// ErrInvalidIndexName indicates an index name outside the allowed pattern.
var ErrInvalidIndexName = errors.New("invalid index name")

// indexNamePattern restricts index names to lowercase alphanumerics,
// underscores, and hyphens, max 64 chars.
var indexNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// chunkNamespace seeds deterministic point ids: the same chunk id
// always maps to the same point, so re-indexing a chunk overwrites it.
var chunkNamespace = uuid.MustParse("b1e4f1d6-5a0e-4c9d-9f3a-7c2d8e6b4a10")

// ValidateIndexName checks an index name against the allowed pattern.
func ValidateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIndexName, name)
	}
	return nil
}

// QdrantConfig holds connection settings for the Qdrant backend.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	MaxMessageSize int
	ConnectTimeout time.Duration
}

// ApplyDefaults fills zero values with defaults.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 100 * 1024 * 1024
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Validate checks the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantAdapter implements Adapter against a Qdrant server over gRPC.
// One index maps to one collection.
type QdrantAdapter struct {
	client *qdrant.Client
	config QdrantConfig
}

var _ Adapter = (*QdrantAdapter)(nil)

// NewQdrantAdapter connects to Qdrant and verifies the connection.
func NewQdrantAdapter(cfg QdrantConfig) (*QdrantAdapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrExternalService, err)
	}

	a := &QdrantAdapter{client: client, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: qdrant health check: %v", ErrExternalService, err)
	}
	return a, nil
}

// Close closes the gRPC connection.
func (a *QdrantAdapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// IndexExists reports whether the collection backing an index exists.
func (a *QdrantAdapter) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateIndexName(name); err != nil {
		return false, err
	}

	info, err := a.client.GetCollectionInfo(ctx, name)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == grpccodes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("%w: checking index %s: %v", ErrExternalService, name, err)
	}
	return info != nil, nil
}

// CreateIndex creates the collection for an index with the configured
// vector dimensionality and payload indexes for filterable fields.
// Creating an index that already exists is a no-op.
func (a *QdrantAdapter) CreateIndex(ctx context.Context, name string, cfg schema.IndexConfig) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	exists, err := a.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(cfg.VectorDimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// A concurrent creator winning the race is fine.
		st, ok := status.FromError(err)
		if ok && st.Code() == grpccodes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("%w: creating index %s: %v", ErrExternalService, name, err)
	}

	for _, f := range cfg.Fields {
		if !f.Filterable && !f.PrimaryKey {
			continue
		}
		ft, err := qdrantFieldType(f.Type)
		if err != nil {
			return err
		}
		_, err = a.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      f.Name,
			FieldType:      &ft,
		})
		if err != nil {
			return fmt.Errorf("%w: indexing field %s on %s: %v", ErrExternalService, f.Name, name, err)
		}
	}
	return nil
}

// qdrantFieldType maps a declared field type to a payload index kind.
func qdrantFieldType(t schema.FieldType) (qdrant.FieldType, error) {
	switch t {
	case schema.FieldString:
		return qdrant.FieldType_FieldTypeKeyword, nil
	case schema.FieldDate:
		return qdrant.FieldType_FieldTypeDatetime, nil
	case schema.FieldInteger:
		return qdrant.FieldType_FieldTypeInteger, nil
	case schema.FieldFloat:
		return qdrant.FieldType_FieldTypeFloat, nil
	case schema.FieldBoolean:
		return qdrant.FieldType_FieldTypeBool, nil
	default:
		return 0, fmt.Errorf("%w: field type %q", schema.ErrInvalidFieldType, t)
	}
}

// pointID derives the deterministic point id for a chunk id.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String())
}

// IndexUnits upserts document units into the index. Units missing the
// declared primary key are rejected client-side; the rest go up in one
// batched upsert whose outcome is reported per unit.
func (a *QdrantAdapter) IndexUnits(ctx context.Context, name string, cfg schema.IndexConfig, units []schema.DocumentUnit) ([]UnitResult, error) {
	if err := ValidateIndexName(name); err != nil {
		return nil, err
	}
	results, accepted, positions, err := partitionUnits(cfg, units)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return results, nil
	}

	points := make([]*qdrant.PointStruct, len(accepted))
	for i, u := range accepted {
		payload, err := unitPayload(u)
		if err != nil {
			results[positions[i]].Err = err
			points[i] = nil
			continue
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(u.ChunkID),
			Vectors: qdrant.NewVectors(u.Embedding...),
			Payload: payload,
		}
	}

	upsert := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if p != nil {
			upsert = append(upsert, p)
		}
	}
	if len(upsert) == 0 {
		return results, nil
	}

	_, err = a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         upsert,
		Wait:           qdrant.PtrOf(true),
	})
	for i, p := range points {
		if p == nil {
			continue
		}
		if err != nil {
			results[positions[i]].Err = fmt.Errorf("%w: %v", ErrExternalService, err)
		} else {
			results[positions[i]].Success = true
		}
	}
	return results, nil
}

// unitPayload converts a unit into the indexed payload. Metadata is
// carried as one JSON string field, matching the declared schema.
func unitPayload(u schema.DocumentUnit) (map[string]*qdrant.Value, error) {
	payload := map[string]*qdrant.Value{
		"chunk_id":    {Kind: &qdrant.Value_StringValue{StringValue: u.ChunkID}},
		"document_id": {Kind: &qdrant.Value_StringValue{StringValue: u.DocumentID}},
		"content":     {Kind: &qdrant.Value_StringValue{StringValue: u.Content}},
		"position":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(u.Position)}},
		"version":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(u.Version)}},
		"customer_id": {Kind: &qdrant.Value_StringValue{StringValue: u.CustomerID}},

		scope.FieldAccountID: {Kind: &qdrant.Value_StringValue{StringValue: u.AccountID}},
		scope.FieldUserID:    {Kind: &qdrant.Value_StringValue{StringValue: u.UserID}},
		scope.FieldSessionID: {Kind: &qdrant.Value_StringValue{StringValue: u.SessionID}},
		scope.FieldIsGlobal:  {Kind: &qdrant.Value_BoolValue{BoolValue: u.IsGlobal}},
	}
	if len(u.Metadata) > 0 {
		data, err := json.Marshal(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata for chunk %q: %w", u.ChunkID, err)
		}
		payload["metadata"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: string(data)}}
	}
	return payload, nil
}

// DeleteDocument removes every point whose document_id matches, using
// a server-side filter so no client-held chunk list is needed.
func (a *QdrantAdapter) DeleteDocument(ctx context.Context, name, documentID string) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}
	if documentID == "" {
		return fmt.Errorf("%w: document ID required", ErrInvalidConfig)
	}

	_, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: "document_id",
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
									},
								},
							},
						},
					},
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting document %s from %s: %v", ErrExternalService, documentID, name, err)
	}
	return nil
}

// Search runs a filtered nearest-neighbor query and returns hits in
// engine rank order.
func (a *QdrantAdapter) Search(ctx context.Context, name string, f scope.Filter, vector []float32, topK int) ([]Result, error) {
	if err := ValidateIndexName(name); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}

	points, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Filter:         translateFilter(f),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == grpccodes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
		}
		return nil, fmt.Errorf("%w: searching %s: %v", ErrExternalService, name, err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, resultFromPoint(p))
	}
	return results, nil
}

// translateFilter renders the scope predicate in Qdrant terms. Global
// scope is a bare is_global match; narrower scopes become
// should(must(scope terms), is_global = true).
func translateFilter(f scope.Filter) *qdrant.Filter {
	globalCond := &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: scope.FieldIsGlobal,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Boolean{Boolean: true},
				},
			},
		},
	}

	if len(f.Must) == 0 {
		return &qdrant.Filter{Must: []*qdrant.Condition{globalCond}}
	}

	scopeConds := make([]*qdrant.Condition, len(f.Must))
	for i, c := range f.Must {
		scopeConds[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: c.Value},
					},
				},
			},
		}
	}

	return &qdrant.Filter{
		Should: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Filter{
					Filter: &qdrant.Filter{Must: scopeConds},
				},
			},
			globalCond,
		},
	}
}

func resultFromPoint(p *qdrant.ScoredPoint) Result {
	r := Result{Score: p.Score}
	for k, v := range p.Payload {
		sv, ok := v.Kind.(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case "chunk_id":
			r.ChunkID = sv.StringValue
		case "document_id":
			r.DocumentID = sv.StringValue
		case "content":
			r.Content = sv.StringValue
		case "metadata":
			var meta map[string]any
			if err := json.Unmarshal([]byte(sv.StringValue), &meta); err == nil {
				r.Metadata = meta
			}
		}
	}
	return r
}
