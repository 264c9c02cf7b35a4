// Command seedissues populates a MongoDB database with every defect
// class the healing engine detects, for demos and end-to-end testing.
//
// It clears the users, orders and products collections along with any
// leftover backup and orphan-archive collections, then seeds duplicate
// users, orphaned orders, users with missing emails, orders with
// invalid statuses, and an unindexed products collection it queries to
// feed the profiler.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ukdeo/Self-Healing-Database/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("seedissues: load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("seedissues: connect: %v", err)
	}
	defer client.Disconnect(context.Background())
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("seedissues: ping: %v", err)
	}
	db := client.Database(cfg.MongoDatabase)

	if err := clearCollections(ctx, db); err != nil {
		log.Fatalf("seedissues: clear: %v", err)
	}

	seedUsers(ctx, db)
	seedOrders(ctx, db)
	seedProducts(ctx, db)

	fmt.Println("Seeded:")
	fmt.Println("  - 3 duplicate users sharing john@example.com")
	fmt.Println("  - 2 orders referencing non-existent ghost@example.com")
	fmt.Println("  - 2 users with a missing or empty email")
	fmt.Println("  - 2 orders with an invalid status")
	fmt.Println("  - 1000 products queried without an index on category")
}

// clearCollections drops the seeded collections plus anything the
// engine produced in earlier runs.
func clearCollections(ctx context.Context, db *mongo.Database) error {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range names {
		drop := name == "users" || name == "orders" || name == "products" ||
			strings.Contains(name, "_backup_") || strings.HasSuffix(name, "_orphaned")
		if !drop {
			continue
		}
		if err := db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		log.Printf("seedissues: dropped %s", name)
	}
	return nil
}

func seedUsers(ctx context.Context, db *mongo.Database) {
	now := time.Now().UTC()
	users := []any{
		bson.M{"name": "Alice", "email": "alice@example.com", "created_at": now},
		bson.M{"name": "Bob", "email": "bob@example.com", "created_at": now},
		// Duplicate group: the earliest copy survives a fix.
		bson.M{"name": "John A", "email": "john@example.com", "created_at": now.Add(-3 * time.Hour)},
		bson.M{"name": "John B", "email": "john@example.com", "created_at": now.Add(-2 * time.Hour)},
		bson.M{"name": "John C", "email": "john@example.com", "created_at": now.Add(-1 * time.Hour)},
		// Missing required field.
		bson.M{"name": "No Email", "created_at": now},
		bson.M{"name": "Empty Email", "email": "", "created_at": now},
	}
	if _, err := db.Collection("users").InsertMany(ctx, users); err != nil {
		log.Fatalf("seedissues: insert users: %v", err)
	}
}

func seedOrders(ctx context.Context, db *mongo.Database) {
	now := time.Now().UTC()
	orders := []any{
		bson.M{"user_email": "alice@example.com", "status": "completed", "total": 42.50, "created_at": now},
		bson.M{"user_email": "bob@example.com", "status": "pending", "total": 13.37, "created_at": now},
		// Orphans: no user carries this email.
		bson.M{"user_email": "ghost@example.com", "status": "pending", "total": 99.99, "created_at": now},
		bson.M{"user_email": "ghost@example.com", "status": "completed", "total": 12.00, "created_at": now},
		// Invalid statuses.
		bson.M{"user_email": "alice@example.com", "status": "shipped", "total": 7.25, "created_at": now},
		bson.M{"user_email": "bob@example.com", "status": "unknown", "total": 3.10, "created_at": now},
	}
	if _, err := db.Collection("orders").InsertMany(ctx, orders); err != nil {
		log.Fatalf("seedissues: insert orders: %v", err)
	}
}

// seedProducts inserts an unindexed collection and runs filtered reads
// against it so the profiler records slow collection scans.
func seedProducts(ctx context.Context, db *mongo.Database) {
	categories := []string{"books", "games", "tools", "garden", "kitchen"}
	products := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		products = append(products, bson.M{
			"sku":      fmt.Sprintf("SKU-%05d", i),
			"category": categories[i%len(categories)],
			"price":    float64(i%500) + 0.99,
		})
	}
	if _, err := db.Collection("products").InsertMany(ctx, products); err != nil {
		log.Fatalf("seedissues: insert products: %v", err)
	}

	// Profile every operation so the scans below are sampled even when
	// they complete quickly on a small dataset.
	if err := db.RunCommand(ctx, bson.D{{Key: "profile", Value: 2}}).Err(); err != nil {
		log.Printf("seedissues: enable profiling: %v", err)
	}
	for i := 0; i < 5; i++ {
		cursor, err := db.Collection("products").Find(ctx, bson.M{"category": categories[i%len(categories)]})
		if err != nil {
			log.Printf("seedissues: products query: %v", err)
			continue
		}
		var results []bson.M
		if err := cursor.All(ctx, &results); err != nil {
			log.Printf("seedissues: products cursor: %v", err)
		}
	}
}
