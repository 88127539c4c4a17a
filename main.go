package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"hometheater/api"
	"hometheater/config"
	"hometheater/handlers"
	"hometheater/services/catalog"
	"hometheater/services/enrich"
	"hometheater/services/metadata"
	"hometheater/services/scanner"
	"hometheater/services/subtitles"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	skipScan := flag.Bool("no-scan", false, "skip the library scan on startup")
	flag.Parse()

	fmt.Println("🚀 Home Theater backend starting...")

	configPath := os.Getenv("HOMETHEATER_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	catalogSvc, err := catalog.NewService(settings.Cache.Directory)
	if err != nil {
		log.Fatalf("failed to init catalog: %v", err)
	}

	posterStore, err := enrich.NewPosterStore(filepath.Join(settings.Cache.Directory, "posters"))
	if err != nil {
		log.Fatalf("failed to init poster store: %v", err)
	}

	queue := enrich.NewQueue(1024)
	scannerSvc := scanner.NewService(afero.NewOsFs(), cfgManager, catalogSvc, queue)
	subtitleSvc := subtitles.NewService(afero.NewOsFs(), settings.Subtitles.Languages)

	enrichSvc := enrich.NewService(queue, omdbSource(cfgManager), catalogSvc, posterStore, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go enrichSvc.Run(ctx)

	if !*skipScan {
		go func() {
			if err := scannerSvc.Scan(ctx); err != nil {
				log.Printf("[scanner] startup scan: %v", err)
			}
		}()
	}

	catalogHandler := handlers.NewCatalogHandler(ctx, catalogSvc, scannerSvc, queue)
	settingsHandler := handlers.NewSettingsHandler(cfgManager)
	videoHandler := handlers.NewVideoHandler(catalogSvc, cfgManager)
	subtitlesHandler := handlers.NewSubtitlesHandler(catalogSvc, cfgManager, subtitleSvc, openSubtitlesSource(cfgManager))
	postersHandler := handlers.NewPostersHandler(posterStore)

	r := mux.NewRouter()
	api.Register(r, catalogHandler, settingsHandler, videoHandler, subtitlesHandler, postersHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// omdbSource hands the enrichment worker a provider matching the currently
// configured API key, rebuilding the client when the key changes.
func omdbSource(cfgManager *config.Manager) enrich.ProviderSource {
	var (
		mu       sync.Mutex
		key      string
		provider *metadata.OMDbService
	)
	return func() metadata.Provider {
		settings, err := cfgManager.Load()
		if err != nil {
			log.Printf("[enrich] settings unavailable: %v", err)
			return nil
		}
		current := strings.TrimSpace(settings.Metadata.OMDbAPIKey)
		if current == "" {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		if provider == nil || key != current {
			ttl := time.Duration(settings.Cache.MetadataTTLHours) * time.Hour
			provider = metadata.NewOMDbService(current, nil, settings.Cache.Directory, ttl)
			key = current
		}
		return provider
	}
}

// openSubtitlesSource mirrors omdbSource for the subtitle provider.
func openSubtitlesSource(cfgManager *config.Manager) handlers.RemoteSubtitleSource {
	var (
		mu     sync.Mutex
		key    string
		client *subtitles.OpenSubtitlesClient
	)
	return func() *subtitles.OpenSubtitlesClient {
		settings, err := cfgManager.Load()
		if err != nil {
			log.Printf("[subtitles] settings unavailable: %v", err)
			return nil
		}
		current := strings.TrimSpace(settings.Subtitles.OpenSubtitlesAPIKey)

		mu.Lock()
		defer mu.Unlock()
		if client == nil || key != current {
			client = subtitles.NewOpenSubtitlesClient(current, nil)
			key = current
		}
		return client
	}
}
