// config/db.go
package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB establishes connection to MongoDB
func ConnectDB() *mongo.Client {
	// Check both MONGO_URI and MONGODB_URI
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	// Only use Docker service name as fallback in development
	if mongoURI == "" {
		env := os.Getenv("ENV")
		if env == "development" || env == "dev" {
			mongoURI = "mongodb://mongodb:27017"
		} else {
			log.Fatal("MONGO_URI or MONGODB_URI environment variable is required for production")
		}
	}

	// Log connection URI (without password for security)
	log.Printf("Connecting to MongoDB at: %s", maskMongoURI(mongoURI))

	clientOptions := options.Client().ApplyURI(mongoURI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatal("MongoDB connection error:", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		log.Fatal("MongoDB ping error:", err)
	}

	log.Println("Connected to MongoDB")

	setupCollections(client)

	return client
}

// DatabaseName resolves the database name from the environment.
func DatabaseName() string {
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "edupartner"
	}
	return dbName
}

// GetCollection returns MongoDB collection
func GetCollection(client *mongo.Client, collectionName string) *mongo.Collection {
	return client.Database(DatabaseName()).Collection(collectionName)
}

// setupCollections ensures all necessary collections and indexes exist.
// The commission_ledgers indexes carry the correctness of the reconciler:
// the partial unique index serializes ledger creation per open period, and
// the multikey line-item index backs the duplicate-purchase probe.
func setupCollections(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := client.Database(DatabaseName())

	collections := []string{
		"users", "organizations", "organization_members", "packages",
		"purchases", "price_adjustments", "enrollments",
		"commission_ledgers", "commission_audit_logs",
	}
	for _, collName := range collections {
		db.CreateCollection(ctx, collName)
	}

	// Email index for users collection
	userColl := db.Collection("users")
	emailIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := userColl.Indexes().CreateOne(ctx, emailIndexModel); err != nil {
		log.Printf("Error creating email index: %v", err)
	}

	// A user belongs to at most one organization
	memberColl := db.Collection("organization_members")
	memberIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := memberColl.Indexes().CreateOne(ctx, memberIndexModel); err != nil {
		log.Printf("Error creating userId index for organization_members: %v", err)
	}

	// Gateway callbacks look purchases up by externalId
	purchaseColl := db.Collection("purchases")
	externalIDIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "externalId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := purchaseColl.Indexes().CreateOne(ctx, externalIDIndexModel); err != nil {
		log.Printf("Error creating externalId index for purchases: %v", err)
	}

	adjustmentColl := db.Collection("price_adjustments")
	adjustmentIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "purchaseId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := adjustmentColl.Indexes().CreateOne(ctx, adjustmentIndexModel); err != nil {
		log.Printf("Error creating purchaseId index for price_adjustments: %v", err)
	}

	ledgerColl := db.Collection("commission_ledgers")
	ledgerIndexes := []mongo.IndexModel{
		// At most one open (pending or processed) ledger per organization
		// and period. Paid and disputed ledgers fall outside the partial
		// filter, so history coexists with a fresh open ledger for the same
		// period. A losing concurrent insert surfaces as a duplicate key.
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "periodType", Value: 1},
				{Key: "periodStart", Value: 1},
				{Key: "periodEnd", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetName("open_ledger_per_period").
				SetPartialFilterExpression(bson.D{
					{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"pending", "processed"}}}},
				}),
		},
		// Multikey index over embedded line items; the reconciler probes it
		// on every delivery to drop duplicates.
		{
			Keys:    bson.D{{Key: "lineItems.purchaseId", Value: 1}},
			Options: options.Index().SetName("ledger_line_item_purchase"),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "organizationId", Value: 1}},
		},
	}
	if _, err := ledgerColl.Indexes().CreateMany(ctx, ledgerIndexes); err != nil {
		log.Printf("Error creating indexes for commission_ledgers: %v", err)
	}

	auditColl := db.Collection("commission_audit_logs")
	auditIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "ledgerId", Value: 1}, {Key: "createdAt", Value: -1}},
	}
	if _, err := auditColl.Indexes().CreateOne(ctx, auditIndexModel); err != nil {
		log.Printf("Error creating ledgerId index for commission_audit_logs: %v", err)
	}

	log.Println("Database collections and indexes setup complete")
}

// maskMongoURI masks the password in MongoDB URI for logging
func maskMongoURI(uri string) string {
	if idx := strings.Index(uri, "@"); idx > 0 {
		if colonIdx := strings.LastIndex(uri[:idx], ":"); colonIdx > 0 {
			return uri[:colonIdx+1] + "***" + uri[idx:]
		}
	}
	return uri
}
