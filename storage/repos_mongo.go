package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB repos. Fact ids stay monotonic through a counter collection,
// matching the SQL drivers' auto-increment behavior.

const mongoOpTimeout = 5 * time.Second

type mongoFactDoc struct {
	ID          int64     `bson:"id"`
	UUID        string    `bson:"uuid"`
	Topic       string    `bson:"topic"`
	Content     string    `bson:"content"`
	Embedding   []byte    `bson:"embedding"`
	Upvotes     int64     `bson:"upvotes"`
	Downvotes   int64     `bson:"downvotes"`
	FlagCount   int64     `bson:"flag_count"`
	Visibility  string    `bson:"visibility"`
	DateCreated time.Time `bson:"date_created"`
}

type mongoFactRepo struct {
	db *mongo.Database
}

func (r *mongoFactRepo) coll() *mongo.Collection { return r.db.Collection("lore_fact") }

func (r *mongoFactRepo) Create(topic, content string, embedding []float32, visibility string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	seq, err := nextSeq(r.db, "lore_fact")
	if err != nil {
		return 0, err
	}

	doc := mongoFactDoc{
		ID:          seq,
		UUID:        uuid.New().String(),
		Topic:       topic,
		Content:     content,
		Embedding:   encodeEmbedding(embedding),
		Visibility:  visibility,
		DateCreated: time.Now().UTC(),
	}

	_, err = r.coll().InsertOne(ctx, doc)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *mongoFactRepo) Get(id int64) (FactRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	var doc mongoFactDoc
	err := r.coll().FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if err != nil {
		return FactRecord{}, mapNoDocuments(err)
	}
	return factFromDoc(doc), nil
}

func (r *mongoFactRepo) Replace(id int64, topic, content string, embedding []float32) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	res, err := r.coll().UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{
		"topic":     topic,
		"content":   content,
		"embedding": encodeEmbedding(embedding),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoFactRepo) Delete(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	res, err := r.coll().DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoFactRepo) AddVote(id int64, up bool) (VoteCounts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	field := "downvotes"
	if up {
		field = "upvotes"
	}

	var doc mongoFactDoc
	err := r.coll().FindOneAndUpdate(
		ctx,
		bson.M{"id": id},
		bson.M{"$inc": bson.M{field: 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return VoteCounts{}, mapNoDocuments(err)
	}
	return VoteCounts{Upvotes: doc.Upvotes, Downvotes: doc.Downvotes}, nil
}

func (r *mongoFactRepo) IncrementFlag(id int64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	var doc mongoFactDoc
	err := r.coll().FindOneAndUpdate(
		ctx,
		bson.M{"id": id},
		bson.M{"$inc": bson.M{"flag_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, mapNoDocuments(err)
	}
	return doc.FlagCount, nil
}

func (r *mongoFactRepo) ResetFlags(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	res, err := r.coll().UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"flag_count": 0}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoFactRepo) Each(fn func(id int64, embedding []float32) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cur, err := r.coll().Find(
		ctx,
		bson.M{},
		options.Find().
			SetProjection(bson.M{"id": 1, "embedding": 1}).
			SetSort(bson.D{{Key: "id", Value: 1}}),
	)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc struct {
			ID        int64  `bson:"id"`
			Embedding []byte `bson:"embedding"`
		}
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		if err := fn(doc.ID, decodeEmbedding(doc.Embedding)); err != nil {
			return err
		}
	}
	return cur.Err()
}

func (r *mongoFactRepo) ListTopics(match string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 25
	}

	filter := bson.M{}
	if match != "" {
		filter = bson.M{"topic": bson.M{"$regex": match, "$options": "i"}}
	}

	cur, err := r.coll().Find(
		ctx,
		filter,
		options.Find().
			SetProjection(bson.M{"topic": 1}).
			SetSort(bson.D{{Key: "id", Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var topics []string
	for cur.Next(ctx) {
		var doc struct {
			Topic string `bson:"topic"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		topics = append(topics, doc.Topic)
	}
	return topics, cur.Err()
}

type mongoAliasRepo struct {
	db *mongo.Database
}

func (r *mongoAliasRepo) coll() *mongo.Collection { return r.db.Collection("lore_alias") }

func (r *mongoAliasRepo) Upsert(trigger, replacement string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	_, err := r.coll().UpdateOne(
		ctx,
		bson.M{"trigger": trigger},
		bson.M{"$set": bson.M{"replacement": replacement}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *mongoAliasRepo) Delete(trigger string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	res, err := r.coll().DeleteOne(ctx, bson.M{"trigger": trigger})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAliasRepo) All() (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	cur, err := r.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]string)
	for cur.Next(ctx) {
		var doc struct {
			Trigger     string `bson:"trigger"`
			Replacement string `bson:"replacement"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.Trigger] = doc.Replacement
	}
	return out, cur.Err()
}

type mongoConfigRepo struct {
	db *mongo.Database
}

func (r *mongoConfigRepo) coll() *mongo.Collection { return r.db.Collection("lore_config") }

func (r *mongoConfigRepo) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	var doc struct {
		Value string `bson:"value"`
	}
	err := r.coll().FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		return "", mapNoDocuments(err)
	}
	return doc.Value, nil
}

func (r *mongoConfigRepo) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	_, err := r.coll().UpdateOne(
		ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": value}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *mongoConfigRepo) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	res, err := r.coll().DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoConfigRepo) All() (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	cur, err := r.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]string)
	for cur.Next(ctx) {
		var doc struct {
			Key   string `bson:"key"`
			Value string `bson:"value"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.Key] = doc.Value
	}
	return out, cur.Err()
}

func factFromDoc(doc mongoFactDoc) FactRecord {
	return FactRecord{
		ID:         doc.ID,
		UUID:       doc.UUID,
		Topic:      doc.Topic,
		Content:    doc.Content,
		Embedding:  decodeEmbedding(doc.Embedding),
		Upvotes:    doc.Upvotes,
		Downvotes:  doc.Downvotes,
		FlagCount:  doc.FlagCount,
		Visibility: doc.Visibility,
		CreatedAt:  doc.DateCreated,
	}
}

func mapNoDocuments(err error) error {
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return err
}

func nextSeq(db *mongo.Database, name string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	coll := db.Collection("lore_counters")
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// Mongo driver repos
type mongoRepos struct {
	fact   FactRepo
	alias  AliasRepo
	config ConfigRepo
}

func (d *MongoDriver) initRepos() {
	if d.repos == nil {
		d.repos = &mongoRepos{
			fact:   &mongoFactRepo{db: d.db()},
			alias:  &mongoAliasRepo{db: d.db()},
			config: &mongoConfigRepo{db: d.db()},
		}
	}
}

func (d *MongoDriver) Fact() FactRepo {
	d.initRepos()
	return d.repos.fact
}

func (d *MongoDriver) Alias() AliasRepo {
	d.initRepos()
	return d.repos.alias
}

func (d *MongoDriver) Config() ConfigRepo {
	d.initRepos()
	return d.repos.config
}
