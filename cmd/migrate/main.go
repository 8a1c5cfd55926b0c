// Command migrate applies the embedded remoteflow schemas outside the service.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/chrissnell/remoteflow/internal/database"
	"github.com/chrissnell/remoteflow/pkg/config"
	"github.com/chrissnell/remoteflow/pkg/migrate"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const usageFooter = `
Commands:
  up        apply all pending migrations
  down      roll back to -target
  to        migrate up or down to -target
  version   print the applied version
  status    print applied, latest and pending migrations

Examples:
  migrate -dsn config.db -command status
  migrate -schema readings -dsn postgres://flow@localhost/flow -command up
  migrate -schema readings -dsn postgres://flow@localhost/flow -command down -target 1
`

func main() {
	schema := flag.String("schema", "config", "Schema to migrate: config (SQLite) or readings (TimescaleDB)")
	dsn := flag.String("dsn", "", "Database connection string or SQLite file path (required)")
	command := flag.String("command", "up", "Migration command: up, down, to, version, status")
	target := flag.String("target", "", "Target version for down/to")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprint(flag.CommandLine.Output(), usageFooter)
	}
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "Error: -dsn is required")
		flag.Usage()
		os.Exit(2)
	}

	driver, provider, err := schemaProvider(*schema)
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open(driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", *schema, err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach %s database: %v", *schema, err)
	}

	migrator := migrate.NewMigrator(db, provider).WithLogger(log.Printf)
	if err := run(migrator, *command, *target); err != nil {
		log.Fatalf("%s %s failed: %v", *schema, *command, err)
	}
}

func run(migrator *migrate.Migrator, command, target string) error {
	switch command {
	case "up":
		return migrator.MigrateUp()
	case "down", "to":
		version, err := parseTarget(target)
		if err != nil {
			return err
		}
		if command == "down" {
			return migrator.MigrateDown(version)
		}
		return migrator.MigrateTo(version)
	case "version":
		version, err := migrator.GetCurrentVersion()
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	case "status":
		st, err := migrator.Status()
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// schemaProvider maps a schema name to its SQL driver and embedded migrations.
func schemaProvider(schema string) (string, migrate.MigrationProvider, error) {
	switch schema {
	case "config":
		return "sqlite", config.SchemaProvider(), nil
	case "readings":
		return "postgres", database.SchemaProvider(), nil
	default:
		return "", nil, fmt.Errorf("unknown schema %q (want config or readings)", schema)
	}
}

func parseTarget(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("-target is required")
	}
	version, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid -target %q: %w", s, err)
	}
	if version < 0 {
		return 0, fmt.Errorf("-target %d is negative", version)
	}
	return version, nil
}

func printStatus(st migrate.Status) {
	fmt.Printf("applied: %d\nlatest:  %d\n", st.Current, st.Latest)
	if st.UpToDate() {
		fmt.Println("up to date")
		return
	}
	fmt.Printf("pending (%d):\n", len(st.Pending))
	for _, m := range st.Pending {
		fmt.Printf("  %03d %s\n", m.Version, m.Name)
	}
}
