// Command envcheck validates the process environment, including the
// PostgreSQL block, and prints the resulting configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"recados-api/core"
)

func main() {
	ping := flag.Bool("ping", false, "connect to PostgreSQL after validation")
	flag.Parse()

	cfg, err := core.LoadWithDatabase(os.Environ())
	if err != nil {
		fmt.Fprint(os.Stderr, core.FormatConfigReport(err))
		os.Exit(1)
	}

	fmt.Println("Environment variables validated successfully")
	fmt.Printf("  NODE_ENV            %s\n", cfg.Env)
	fmt.Printf("  PORT                %d\n", cfg.Port)
	fmt.Printf("  API_PREFIX          %s\n", cfg.APIPrefix)
	fmt.Printf("  POSTGRESQL_SERVER   %s\n", cfg.Database.Server)
	fmt.Printf("  POSTGRESQL_PORT     %d (%T)\n", cfg.Database.Port, cfg.Database.Port)
	fmt.Printf("  POSTGRESQL_DATABASE %s\n", cfg.Database.Name)
	fmt.Printf("  POSTGRESQL_USER     %s\n", cfg.Database.User)
	fmt.Printf("  POSTGRESQL_PASSWORD %s\n", mask(cfg.Database.Password))

	if !*ping {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := core.Connect(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database ping failed: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	version, err := core.ServerVersion(ctx, pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database query failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("database reachable, server version %s\n", version)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}
