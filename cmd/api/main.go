package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/rota27/refinado/internal/db"
	"github.com/rota27/refinado/internal/env"
	"github.com/rota27/refinado/internal/forecast"
	"github.com/rota27/refinado/internal/graph"
	"github.com/rota27/refinado/internal/logger"
	"github.com/rota27/refinado/internal/store"
	"github.com/rota27/refinado/internal/workbook"
)

func main() {
	const component = "Main"

	godotenv.Load()

	cfg := config{
		addr:     env.GetString("ADDR", ":8080"),
		logLevel: env.GetString("LOG_LEVEL", "info"),
		auth: authConfig{
			managerPassword: env.GetString("MANAGER_PASSWORD", ""),
			adminPassword:   env.GetString("ADMIN_PASSWORD", ""),
		},
		graph: graph.Config{
			TenantID:     env.GetString("AZURE_TENANT_ID", ""),
			ClientID:     env.GetString("AZURE_CLIENT_ID", ""),
			ClientSecret: env.GetString("AZURE_CLIENT_SECRET", ""),
			SiteDomain:   env.GetString("SHAREPOINT_SITE", ""),
			Library:      env.GetString("SHAREPOINT_LIBRARY", "Documentos"),
			Folder:       env.GetString("SHAREPOINT_FOLDER", ""),
			File:         env.GetString("SHAREPOINT_FILE", "Previsao.xlsx"),
			Timeout:      env.GetDuration("GRAPH_TIMEOUT", 25*time.Second),
		},
		db: dbConfig{
			addr:         env.GetString("DB_ADDR", ""),
			maxOpenConns: env.GetInt("DB_MAX_OPEN_CONNS", 10),
			maxIdleConns: env.GetInt("DB_MAX_IDLE_CONNS", 10),
			maxIdleTime:  env.GetString("DB_MAX_IDLE_TIME", "15m"),
		},
	}

	appLogger := logger.New(logger.ParseLevel(cfg.logLevel))

	if cfg.auth.managerPassword == "" && cfg.auth.adminPassword == "" {
		appLogger.Fatal(component, "No access password configured; set MANAGER_PASSWORD and ADMIN_PASSWORD")
	}
	if cfg.graph.TenantID == "" || cfg.graph.ClientID == "" || cfg.graph.ClientSecret == "" {
		appLogger.Fatal(component, "Incomplete Azure credentials; set AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET")
	}

	cache := graph.NewDocumentCache()
	client := graph.NewClient(cfg.graph, cache, appLogger)
	sheets := workbook.NewFacade(client, appLogger)

	var storage *store.Storage
	if cfg.db.addr != "" {
		conn, err := db.New(cfg.db.addr, cfg.db.maxOpenConns, cfg.db.maxIdleConns, cfg.db.maxIdleTime)
		if err != nil {
			appLogger.Fatal(component, "Database connection failed: %v", err)
		}
		defer conn.Close()
		storage = store.NewStorage(conn)
		appLogger.Info(component, "Audit mirror database connected")
	} else {
		appLogger.Info(component, "DB_ADDR not set; audit mirror disabled")
	}

	app := &application{
		config:   cfg,
		forecast: forecast.NewService(sheets, storage, appLogger),
		cache:    cache,
		store:    storage,
		sessions: newSessionStore(),
		logger:   appLogger,
	}

	// Warm the document caches before accepting traffic so the first
	// request does not pay for token acquisition and ID resolution.
	if _, err := client.FetchBytes(0, false); err != nil {
		appLogger.Warn(component, "Initial workbook fetch failed, continuing: %v", err)
	}

	appLogger.Fatal(component, "Server stopped: %v", app.run(app.mount()))
}
