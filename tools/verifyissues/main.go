// Command verifyissues counts the defects currently present in the
// database without changing anything. Run it before starting the engine
// to see the seeded state and afterwards to confirm the repairs.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukdeo/Self-Healing-Database/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("verifyissues: load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("verifyissues: connect: %v", err)
	}
	defer client.Disconnect(context.Background())
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("verifyissues: ping: %v", err)
	}
	db := client.Database(cfg.MongoDatabase)

	duplicates := countDuplicateEmails(ctx, db)
	orphans := countOrphanedOrders(ctx, db)
	missing := countMissingEmails(ctx, db)
	invalid := countInvalidStatuses(ctx, db)
	unindexed := 0
	if !hasIndexOn(ctx, db, "products", "category") {
		unindexed = 1
	}

	fmt.Printf("duplicate_record:   %d\n", duplicates)
	fmt.Printf("orphaned_document:  %d\n", orphans)
	fmt.Printf("missing_field:      %d\n", missing)
	fmt.Printf("invalid_value:      %d\n", invalid)
	fmt.Printf("missing_index:      %d\n", unindexed)
	fmt.Printf("total:              %d\n", duplicates+orphans+missing+invalid+unindexed)
}

// countDuplicateEmails counts email values shared by more than one user.
func countDuplicateEmails(ctx context.Context, db *mongo.Database) int {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"email": bson.M{"$nin": bson.A{nil, ""}}}}},
		bson.D{{Key: "$group", Value: bson.M{"_id": "$email", "count": bson.M{"$sum": 1}}}},
		bson.D{{Key: "$match", Value: bson.M{"count": bson.M{"$gt": 1}}}},
	}
	cursor, err := db.Collection("users").Aggregate(ctx, pipeline)
	if err != nil {
		log.Fatalf("verifyissues: aggregate duplicates: %v", err)
	}
	var groups []bson.M
	if err := cursor.All(ctx, &groups); err != nil {
		log.Fatalf("verifyissues: read duplicate groups: %v", err)
	}
	return len(groups)
}

// countOrphanedOrders counts orders whose user_email matches no user.
func countOrphanedOrders(ctx context.Context, db *mongo.Database) int {
	emails, err := db.Collection("users").Distinct(ctx, "email", bson.M{})
	if err != nil {
		log.Fatalf("verifyissues: distinct emails: %v", err)
	}
	n, err := db.Collection("orders").CountDocuments(ctx, bson.M{
		"user_email": bson.M{"$nin": append(emails, nil, "")},
	})
	if err != nil {
		log.Fatalf("verifyissues: count orphans: %v", err)
	}
	return int(n)
}

// countMissingEmails counts users with no usable email.
func countMissingEmails(ctx context.Context, db *mongo.Database) int {
	n, err := db.Collection("users").CountDocuments(ctx, bson.M{
		"$or": bson.A{
			bson.M{"email": bson.M{"$exists": false}},
			bson.M{"email": nil},
			bson.M{"email": ""},
		},
	})
	if err != nil {
		log.Fatalf("verifyissues: count missing emails: %v", err)
	}
	return int(n)
}

// countInvalidStatuses counts orders with a status outside the allowed set.
func countInvalidStatuses(ctx context.Context, db *mongo.Database) int {
	allowed := bson.A{"pending", "processing", "completed", "cancelled"}
	n, err := db.Collection("orders").CountDocuments(ctx, bson.M{
		"status": bson.M{"$nin": allowed},
	})
	if err != nil {
		log.Fatalf("verifyissues: count invalid statuses: %v", err)
	}
	return int(n)
}

// hasIndexOn reports whether an index whose first key is the given
// field exists on the collection.
func hasIndexOn(ctx context.Context, db *mongo.Database, collection, field string) bool {
	cursor, err := db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		log.Fatalf("verifyissues: list indexes: %v", err)
	}
	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		log.Fatalf("verifyissues: read indexes: %v", err)
	}
	for _, idx := range indexes {
		key, ok := idx["key"].(bson.M)
		if !ok {
			continue
		}
		if _, present := key[field]; present {
			return true
		}
	}
	return false
}
