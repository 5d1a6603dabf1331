package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"

	"watchlog/internal/auth"
	"watchlog/internal/handler"
	"watchlog/internal/notify"
	"watchlog/internal/repository"
	"watchlog/internal/service"
	"watchlog/internal/tmdb"
)

// Config holds the application configuration
type Config struct {
	TMDBAPIKey       string
	DBPath           string
	BackupDir        string
	Port             string
	Users            string // "user:token,user:token"
	LogFile          string // empty disables file logging
	TelegramBotToken string
	TelegramChatID   int64
	TelegramUserID   string // tracked user the digest reports on
	DigestTime       string // Format: "HH:MM"
}

func main() {
	// Parse CLI flags
	digestMode := flag.Bool("digest", false, "Send progress digest and exit")
	flag.Parse()

	config := loadConfig()

	if config.LogFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	}

	// Initialize database
	db, err := repository.NewSQLiteDB(config.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	// Initialize repositories
	trackingRepo := repository.NewTrackingRepository(db)
	watchlistRepo := repository.NewWatchlistRepository(db)

	// Initialize TMDB client
	tmdbClient := tmdb.NewClient(config.TMDBAPIKey)

	// Initialize services
	watchlistSvc := service.NewWatchlistService(watchlistRepo)
	tracker := service.NewEpisodeTracker(trackingRepo, tmdbClient, watchlistSvc)
	backupSvc := service.NewBackupService(config.DBPath, config.BackupDir)

	// Initialize auth provider
	provider, err := auth.NewStaticProvider(config.Users)
	if err != nil {
		log.Fatalf("Failed to parse API_USERS: %v", err)
	}
	if provider.UserCount() == 0 {
		log.Println("Warning: API_USERS not set. All mutations will be rejected.")
	}

	// Optional Telegram bot
	var bot *notify.TelegramBot
	if config.TelegramBotToken != "" && config.TelegramChatID != 0 {
		deps := notify.Dependencies{Tracker: tracker, BackupSvc: backupSvc}
		bot, err = notify.NewTelegramBot(config.TelegramBotToken, config.TelegramChatID, config.TelegramUserID, deps)
		if err != nil {
			log.Fatalf("Failed to create Telegram bot: %v", err)
		}
	}

	// CLI mode: send progress digest and exit
	if *digestMode {
		if bot == nil {
			log.Fatal("Telegram bot not configured. Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID environment variables.")
		}
		log.Println("Sending progress digest...")
		if err := bot.SendDailyReport(); err != nil {
			log.Fatalf("Failed to send progress digest: %v", err)
		}
		fmt.Println("Progress digest sent successfully!")
		return
	}

	// Initialize scheduler; the digest job runs only when the bot exists
	var reportSender service.ReportSender
	if bot != nil {
		reportSender = bot
	}
	scheduler := service.NewScheduler(reportSender, backupSvc, config.DigestTime)
	scheduler.Start()

	// HTTP server
	r := gin.Default()
	httpHandler := handler.NewHTTPHandler(tracker, watchlistSvc, backupSvc, provider)
	httpHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + config.Port,
		Handler: r,
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down...")
		scheduler.Stop()
		if bot != nil {
			bot.Stop()
		}
		srv.Close()
	}()

	if bot != nil {
		go bot.Start()
	}

	log.Printf("watchlog server listening on :%s", config.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	chatID, _ := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)

	config := &Config{
		TMDBAPIKey:       getEnv("TMDB_API_KEY", ""),
		DBPath:           getEnv("DB_PATH", "watchlog.db"),
		BackupDir:        getEnv("BACKUP_DIR", "backups"),
		Port:             getEnv("PORT", "8080"),
		Users:            getEnv("API_USERS", ""),
		LogFile:          getEnv("LOG_FILE", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   chatID,
		TelegramUserID:   getEnv("TELEGRAM_USER_ID", ""),
		DigestTime:       getEnv("DIGEST_TIME", "08:00"),
	}

	if config.TMDBAPIKey == "" {
		log.Println("Warning: TMDB_API_KEY not set. TMDB API calls will fail.")
	}

	return config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
