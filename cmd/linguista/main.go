package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/r-salas/linguista/internal/classifier"
	"github.com/r-salas/linguista/internal/engine"
	"github.com/r-salas/linguista/internal/store"
	"github.com/r-salas/linguista/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for linguista state data
	DefaultStateDir = "/var/lib/linguista"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "linguista.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	tracker, err := openTracker(flags)
	if err != nil {
		slog.Error("Failed to open conversation tracker", "error", err, "backend", *flags.backend)
		os.Exit(1)
	}

	cls, err := classifier.NewOpenAI(buildClassifierOptions(flags)...)
	if err != nil {
		slog.Error("Failed to create classifier", "error", err)
		os.Exit(1)
	}

	bot, err := engine.New(tracker, cls, demoFlows()...)
	if err != nil {
		slog.Error("Failed to assemble bot", "error", err)
		os.Exit(1)
	}

	sessionID := *flags.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	slog.Info("Bootstrapping linguista", "backend", *flags.backend, "sessionID", sessionID)

	if err := runREPL(bot, sessionID); err != nil {
		slog.Error("linguista failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("linguista exited successfully")
}

// Config holds environment configuration
type Config struct {
	Backend     string
	DatabaseURL string
	RedisAddr   string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
}

// Flags holds command line flag values
type Flags struct {
	backend     *string
	dbDSN       *string
	redisAddr   *string
	stateDir    *string
	openaiKey   *string
	openaiModel *string
	sessionID   *string
}

// initializeLogger sets up structured logging; LINGUISTA_DEBUG raises the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LINGUISTA_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Backend:     os.Getenv("LINGUISTA_STORE"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		StateDir:    os.Getenv("LINGUISTA_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LINGUISTA_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Backend == "" {
		config.Backend = "memory"
	}

	slog.Debug("environment variables loaded",
		"LINGUISTA_STORE", config.Backend,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR", config.RedisAddr,
		"LINGUISTA_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backend:     flag.String("store", config.Backend, "conversation store backend: memory, sqlite, postgres or redis (overrides $LINGUISTA_STORE)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the sqlite or postgres store (overrides $DATABASE_URL)"),
		redisAddr:   flag.String("redis-addr", config.RedisAddr, "redis address for the redis store (overrides $REDIS_ADDR)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for linguista data (overrides $LINGUISTA_STATE_DIR)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI chat model for command classification (overrides $OPENAI_MODEL)"),
		sessionID:   flag.String("session-id", "", "conversation session id (random when empty)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"store", *flags.backend,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"stateDir", *flags.stateDir,
		"openaiKeySet", *flags.openaiKey != "",
		"openaiModel", *flags.openaiModel,
		"sessionID", *flags.sessionID)

	return flags
}

// openTracker constructs the conversation tracker for the selected backend.
func openTracker(flags Flags) (store.Tracker, error) {
	switch *flags.backend {
	case "memory":
		return store.NewInMemoryTracker(), nil
	case "sqlite":
		dsn := *flags.dbDSN
		if dsn == "" {
			dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
			slog.Debug("No database DSN provided, defaulting to SQLite in state dir", "sqlite_path", dsn)
		}
		return store.NewSQLiteTracker(store.WithDSN(dsn))
	case "postgres":
		if *flags.dbDSN == "" {
			return nil, fmt.Errorf("postgres store requires a DSN (set $DATABASE_URL or -db-dsn)")
		}
		return store.NewPostgresTracker(store.WithDSN(*flags.dbDSN))
	case "redis":
		var opts []store.Option
		if *flags.redisAddr != "" {
			opts = append(opts, store.WithAddr(*flags.redisAddr))
		}
		return store.NewRedisTracker(opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", *flags.backend)
	}
}

// buildClassifierOptions constructs classifier configuration options
func buildClassifierOptions(flags Flags) []classifier.Option {
	var opts []classifier.Option
	if *flags.openaiKey != "" {
		opts = append(opts, classifier.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		opts = append(opts, classifier.WithModel(*flags.openaiModel))
	}
	return opts
}

// runREPL reads user messages from stdin, one per line, and prints the
// bot's replies until EOF.
func runREPL(bot *engine.Bot, sessionID string) error {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("linguista ready. Type a message, Ctrl-D to quit.")
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		err := bot.StreamTurn(ctx, sessionID, text, func(line string) error {
			fmt.Println(line)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
