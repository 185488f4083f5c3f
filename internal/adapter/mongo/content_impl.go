package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

const (
	documentsCollection = "documents"
	linksCollection     = "link_graph"
)

// ContentRepoImpl stores items in a documents collection with a unique
// source_id index. It also serves as an export source, ordered by _id.
type ContentRepoImpl struct {
	documents *mongo.Collection
	links     *mongo.Collection
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

func NewContentRepo(db *mongo.Database) *ContentRepoImpl {
	return &ContentRepoImpl{
		documents: db.Collection(documentsCollection),
		links:     db.Collection(linksCollection),
	}
}

// EnsureIndexes creates the uniqueness constraints the pipeline relies on.
func (r *ContentRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.documents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "platform", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create document indexes: %w", err)
	}
	_, err = r.links.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_key", Value: 1}, {Key: "target_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create link index: %w", err)
	}
	return nil
}

func (r *ContentRepoImpl) Keys(ctx context.Context, platform string) ([]string, error) {
	cur, err := r.documents.Find(ctx, bson.M{"platform": platform},
		options.Find().SetProjection(bson.M{"source_id": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("find keys: %w", err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc struct {
			SourceID string `bson:"source_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		keys = append(keys, doc.SourceID)
	}
	return keys, cur.Err()
}

// Insert upserts with $setOnInsert so an existing document is never modified.
func (r *ContentRepoImpl) Insert(ctx context.Context, item *entity.ContentItem) (bool, error) {
	res, err := r.documents.UpdateOne(ctx,
		bson.M{"source_id": item.SourceID},
		bson.M{"$setOnInsert": item},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert document %s: %w", item.SourceID, err)
	}
	return res.UpsertedCount == 1, nil
}

func (r *ContentRepoImpl) Find(ctx context.Context, platform, sourceID string) (*entity.ContentItem, error) {
	var item entity.ContentItem
	err := r.documents.FindOne(ctx, bson.M{"platform": platform, "source_id": sourceID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", sourceID, err)
	}
	return &item, nil
}

func (r *ContentRepoImpl) AddEdge(ctx context.Context, edge entity.LinkEdge) (bool, error) {
	res, err := r.links.UpdateOne(ctx,
		bson.M{"source_key": edge.SourceKey, "target_key": edge.TargetKey},
		bson.M{"$setOnInsert": edge},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert edge: %w", err)
	}
	return res.UpsertedCount == 1, nil
}

func (r *ContentRepoImpl) ReadBatch(ctx context.Context, offset int64, limit int) ([]*entity.ContentItem, error) {
	cur, err := r.documents.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetSkip(offset).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("read batch at %d: %w", offset, err)
	}
	defer cur.Close(ctx)

	var items []*entity.ContentItem
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return items, nil
}
