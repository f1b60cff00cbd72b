package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/edupartner/edupartner_backend/config"
	"github.com/edupartner/edupartner_backend/middleware"
	"github.com/edupartner/edupartner_backend/models"
	"github.com/edupartner/edupartner_backend/routes"
	"github.com/edupartner/edupartner_backend/utils"
	"github.com/edupartner/edupartner_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis
	cache := config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()
	db := client.Database(config.DatabaseName())

	ensureSuperAdmin(db)

	// Create WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	customValidator := &CustomValidator{validator: validator.New()}
	e.Validator = customValidator

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())
	e.Use(middleware.SecurityHeaders())

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "EduPartner Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Setup routes
	routes.SetupRoutes(e, db, cache, wsHub)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}

// ensureSuperAdmin seeds the super admin account from the environment on
// first boot so the admin surface is reachable on a fresh database.
func ensureSuperAdmin(db *mongo.Database) {
	email := os.Getenv("SUPER_ADMIN_EMAIL")
	password := os.Getenv("SUPER_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("SUPER_ADMIN_EMAIL/SUPER_ADMIN_PASSWORD not set, skipping super admin seed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := db.Collection("users")
	count, err := users.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		log.Printf("Failed to check for super admin: %v", err)
		return
	}
	if count > 0 {
		return
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		log.Printf("Failed to hash super admin password: %v", err)
		return
	}

	now := time.Now().UTC()
	_, err = users.InsertOne(ctx, models.User{
		ID:        primitive.NewObjectID(),
		Email:     email,
		Password:  hashed,
		FullName:  "Super Admin",
		UserType:  models.UserTypeSuperAdmin,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		log.Printf("Failed to seed super admin: %v", err)
		return
	}
	log.Printf("Seeded super admin account %s", email)
}
