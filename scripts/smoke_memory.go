//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/jarvis/jarvis/db"
	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/adapters"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/database"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeMemory opens an embedded database in dir, migrates it and round-trips the knowledge base through it.
func RunSmokeMemory(dir string) {
	fmt.Println("Smoke test: embedded memory database")
	ctx := context.Background()
	path := filepath.Join(dir, "smoke.db")
	defer os.Remove(path)

	dbconn, err := db.ConnectToDB(path, zerolog.Nop())
	must(err, "connect")
	defer dbconn.Close()

	var v int
	must(dbconn.QueryRow("SELECT 1").Scan(&v), "basic SELECT")
	if v != 1 {
		log.Fatalf("basic SELECT returned %v", v)
	}
	fmt.Println("OK: basic SQL")

	must(database.Migrate(dbconn), "migrate")
	must(database.Migrate(dbconn), "migrate twice")
	fmt.Println("OK: migrations")

	store := adapters.NewLibSQLKVStore(dbconn)
	kb, err := service.NewKnowledgeBase(ctx, store, service.KnowledgeOptions{})
	must(err, "load knowledge")
	_, err = kb.Learn(ctx, "smoke", "embedded storage works")
	must(err, "learn")

	// The knowledge list is stored as one JSON array.
	var n int
	must(dbconn.QueryRow("SELECT json_array_length(value) FROM memory WHERE key = 'learned_knowledge'").Scan(&n), "JSON1 query")
	if n != 1 {
		log.Fatalf("knowledge blob has %d entries", n)
	}
	fmt.Println("OK: JSON1 over the knowledge blob")

	reloaded, err := service.NewKnowledgeBase(ctx, store, service.KnowledgeOptions{})
	must(err, "reload knowledge")
	if _, ok := reloaded.Get("smoke"); !ok {
		log.Fatalf("knowledge did not survive reload")
	}
	fmt.Println("OK: knowledge reload")

	fmt.Println("Smoke checks completed.")
}
