// ABOUTME: Entry point for the dishpatch order engine server
// ABOUTME: Subcommands: serve, init, add-staff, staff-token, health

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dishpatch/dishpatch/internal/auth"
	"github.com/dishpatch/dishpatch/internal/config"
	"github.com/dishpatch/dishpatch/internal/gateway"
	"github.com/dishpatch/dishpatch/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _ _     _                 _       _
  __| (_)___| |__  _ __   __ _| |_ ___| |__
 / _' | / __| '_ \| '_ \ / _' | __/ __| '_ \
| (_| | \__ \ | | | |_) | (_| | || (__| | | |
 \__,_|_|___/_| |_| .__/ \__,_|\__\___|_| |_|
                  |_|
`

// getConfigPath returns the path to the dishpatch config file.
// Priority: DISHPATCH_CONFIG env var > XDG_CONFIG_HOME/dishpatch/dishpatch.yaml > ~/.config/dishpatch/dishpatch.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DISHPATCH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "dishpatch.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "dishpatch", "dishpatch.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dishpatch <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                           Start the order engine server")
		fmt.Println("  init                            Create a starter config file")
		fmt.Println("  add-staff --id ID ...           Create a staff record with a password")
		fmt.Println("  staff-token --id ID --password  Issue a staff-bearer token")
		fmt.Println("  health                          Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "add-staff":
		err = runAddStaff(ctx)
	case "staff-token":
		err = runStaffToken(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting dishpatch",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

const starterConfig = `server:
  http_addr: "127.0.0.1:8080"

database:
  path: "dishpatch.db"

auth:
  bot_token: "${DISHPATCH_BOT_TOKEN}"
  staff_token_secret: "${DISHPATCH_STAFF_SECRET}"
  staff_token_ttl: "12h"

bot:
  webhook_url: ""

logging:
  level: "info"
  format: "text"
`

// runInit writes a starter config file at the resolved config path.
func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Set DISHPATCH_BOT_TOKEN and DISHPATCH_STAFF_SECRET before starting.")
	return nil
}

// runAddStaff creates a staff record with a bcrypt-hashed password.
func runAddStaff(ctx context.Context) error {
	args, err := parseFlags(os.Args[2:], "--id", "--restaurant", "--name", "--role", "--password")
	if err != nil {
		return err
	}
	for _, required := range []string{"--id", "--restaurant", "--name", "--role", "--password"} {
		if args[required] == "" {
			return fmt.Errorf("%s flag is required", required)
		}
	}
	if !auth.Role(args["--role"]).Known() {
		return fmt.Errorf("unknown role %q (admin, manager, waiter, cook)", args["--role"])
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(args["--password"]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	staff := &store.Staff{
		ID:           uuid.New().String(),
		ExternalID:   args["--id"],
		RestaurantID: args["--restaurant"],
		Name:         args["--name"],
		Role:         args["--role"],
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.CreateStaff(ctx, staff); err != nil {
		return fmt.Errorf("creating staff: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created staff %s (%s) for restaurant %s\n", staff.Name, staff.Role, staff.RestaurantID)
	return nil
}

// runStaffToken verifies a staff password and mints a staff-bearer token.
func runStaffToken(ctx context.Context) error {
	args, err := parseFlags(os.Args[2:], "--id", "--password")
	if err != nil {
		return err
	}
	if args["--id"] == "" || args["--password"] == "" {
		return fmt.Errorf("--id and --password flags are required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	staff, err := s.GetStaffByExternalID(ctx, args["--id"])
	if err != nil {
		return fmt.Errorf("looking up staff: %w", err)
	}
	if !staff.IsActive {
		return fmt.Errorf("staff member is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(args["--password"])); err != nil {
		return fmt.Errorf("invalid password")
	}

	verifier := auth.NewTokenVerifier([]byte(cfg.Auth.StaffTokenSecret))
	token, err := verifier.Generate(staff.ExternalID, staff.RestaurantID, auth.Role(staff.Role), cfg.Auth.StaffTokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Print("Authorization: ")
	cyan.Printf("%s %s\n", auth.SchemeStaffBearer, token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// parseFlags extracts "--flag value" and "--flag=value" pairs from args.
// Only the listed flag names are accepted.
func parseFlags(args []string, names ...string) (map[string]string, error) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	out := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, value, ok := strings.Cut(arg, "="); ok && known[name] {
			out[name] = value
			continue
		}
		if known[arg] {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a value", arg)
			}
			out[arg] = args[i+1]
			i++
			continue
		}
		return nil, fmt.Errorf("unknown flag: %s", arg)
	}
	return out, nil
}
