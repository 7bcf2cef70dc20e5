package main

import (
	"log"

	"github.com/rankforge/pbn-detector/internal/api"
	"github.com/rankforge/pbn-detector/internal/cache"
	"github.com/rankforge/pbn-detector/internal/config"
	"github.com/rankforge/pbn-detector/internal/db"
	"github.com/rankforge/pbn-detector/internal/heuristics"
)

func main() {
	log.Println("Starting RankForge PBN Detection Engine...")

	settings := config.Load()

	classifier, err := heuristics.NewClassifierService(settings.ClassifierModelPath)
	if err != nil {
		log.Printf("Warning: learned model unavailable, falling back to lightweight classifier: %v", err)
	}
	log.Printf("Classifier ready (model=%s)", classifier.ModelVersion())

	// Redis and Postgres are both advisory: the engine scores identically
	// without them, so connection failures only log a warning.
	redisClient, err := cache.Connect(settings.RedisURL)
	if err != nil {
		log.Printf("Warning: Redis unavailable, caching disabled: %v", err)
		redisClient = nil
	} else if redisClient != nil {
		defer redisClient.Close()
		log.Println("Redis cache connected")
	}

	var dbConn *db.PostgresStore
	if settings.DatabaseURL != "" {
		dbConn, err = db.Connect(settings.DatabaseURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without domain context. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	}

	detector := heuristics.NewDetector(settings, classifier, redisClient, redisClient)

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Setup the Gin Router
	r := api.SetupRouter(settings, detector, dbConn, wsHub)

	// Start the server
	log.Printf("Engine running on :%s (max batch %d, ensemble=%t, enhanced=%t)\n",
		settings.Port, settings.MaxBacklinks, settings.UseEnsemble, settings.UseEnhancedFeatures)
	if err := r.Run(":" + settings.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
