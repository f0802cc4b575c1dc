package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"gorelay/internal/common"
	"gorelay/internal/dbmysql"
	"gorelay/internal/di"
)

func main() {
	log.Println("Starting Relay Service...")

	app, err := di.InitializeApplication()
	if err != nil {
		log.Fatalf("Failed to initialize relay service: %v", err)
	}

	if err := dbmysql.AutoMigrate(app.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("✓ Database migration completed")

	router := mux.NewRouter()
	router.Use(common.LoggingMiddleware())

	// the live socket authenticates in-band with its first frame
	router.HandleFunc("/ws", app.Gateway.ServeWS)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(common.AuthMiddleware(app.Sessions))
	app.MessageHandler.Register(api)
	app.MediaHandler.Register(api)

	srv := &http.Server{
		Addr:         app.Config.Server.Host + ":" + app.Config.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(app.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(app.Config.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Relay Service running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down Relay Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if app.Mongo != nil {
		if err := app.Mongo.Close(ctx); err != nil {
			log.Printf("Mongo close error: %v", err)
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}
	log.Println("Relay Service stopped")
}
