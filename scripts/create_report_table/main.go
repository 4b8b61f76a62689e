package main

import (
	"context"
	"log"

	"github.com/mahaj/counseling-smoke/pkg/config"
	"github.com/mahaj/counseling-smoke/pkg/db"
	"github.com/mahaj/counseling-smoke/pkg/report"
)

func main() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	if err := db.EnsureKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace); err != nil {
		log.Fatal(err)
	}

	session, err := db.NewSession(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	if err := report.NewStore(session).EnsureSchema(context.Background()); err != nil {
		log.Fatal(err)
	}

	log.Printf("Table %s.%s created successfully", cfg.Scylla.Keyspace, report.Table)
}
