package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"treeline/internal/config"
	"treeline/internal/database"
	"treeline/internal/handlers"
	"treeline/internal/logging"
	"treeline/internal/services"
)

func main() {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	cfg := config.Load()
	logging.Init(cfg.Environment)
	logrus.Infof("Starting treeline server (port=%s, max_project_depth=%d)", cfg.Port, cfg.MaxProjectDepth)

	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		logrus.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mongoDB.Initialize(initCtx); err != nil {
		logrus.Fatalf("Failed to initialize MongoDB indexes: %v", err)
	}

	// Services
	projectService := services.NewProjectService(mongoDB, cfg.MaxProjectDepth)
	statsService := services.NewStatsService(mongoDB)

	// Handlers
	statsCache := handlers.NewStatsCache(30 * time.Second)
	projectHandler := handlers.NewProjectHandler(projectService, statsCache)
	statsHandler := handlers.NewStatsHandler(statsService, statsCache)
	healthHandler := handlers.NewHealthHandler(mongoDB)

	app := fiber.New(fiber.Config{
		AppName:      "treeline",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("treeline")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	projects := api.Group("/projects")
	projects.Post("/", projectHandler.Create)
	projects.Post("/find_or_create", projectHandler.FindOrCreate)
	projects.Get("/:id", projectHandler.Get)
	projects.Post("/:id/update", projectHandler.Update)
	projects.Post("/:id/move", projectHandler.Move)
	projects.Post("/:id/merge", projectHandler.Merge)

	stats := api.Group("/stats")
	stats.Post("/projects", statsHandler.GetProjectStats)
	stats.Post("/own_contents", statsHandler.GetOwnContents)
	stats.Post("/active_users", statsHandler.GetActiveUsers)
	stats.Post("/projects_with_active_user", statsHandler.GetProjectsWithActiveUser)
	stats.Post("/task_parents", statsHandler.GetTaskParents)
	stats.Post("/task_types", statsHandler.GetTaskTypes)
	stats.Post("/model_frameworks", statsHandler.GetModelFrameworks)

	api.Post("/tasks/move", projectHandler.MoveTasks)
	api.Post("/models/move", projectHandler.MoveModels)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logrus.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}
}
