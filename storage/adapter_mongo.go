package storage

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoAdapter wraps a caller-owned *mongo.Database. All collections
// (lore_fact, lore_alias, lore_config and the lore_counters id sequence)
// live inside the supplied database; the caller keeps the client and
// disconnects it.
type MongoAdapter struct {
	DB *mongo.Database
}

func (a *MongoAdapter) Dialect() string { return "mongodb" }

func isMongoDB(conn any) bool {
	_, ok := conn.(*mongo.Database)
	return ok
}

func newMongoAdapter(conn any) (Adapter, error) {
	return &MongoAdapter{DB: conn.(*mongo.Database)}, nil
}
