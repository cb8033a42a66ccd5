package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mockbase/mockbase/kv"
	"github.com/mockbase/mockbase/pkg"
	"github.com/mockbase/mockbase/store"
)

// Development convenience: open a durable store, optionally seed it
// from a JSON file of table -> rows, and print a summary.
func main() {
	db_path := flag.String("db", "", "path to a sqlite database file")
	dir := flag.String("dir", "", "directory for a file-backed store")
	seed := flag.String("seed", "", "path to a JSON seed file")
	debug := flag.Bool("debug", false, "enable debug logs")

	flag.Parse()

	log := pkg.NewLogger(*debug)

	var kvs kv.Store
	switch {
	case *db_path != "":
		s, err := kv.OpenSQLite(*db_path)
		if err != nil {
			log.Fatalw("open sqlite store", "error", err)
		}
		defer s.Close()
		kvs = s
	case *dir != "":
		s, err := kv.NewFile(*dir)
		if err != nil {
			log.Fatalw("open file store", "error", err)
		}
		kvs = s
	default:
		log.Warn("no -db or -dir given, state will not survive this process")
		kvs = kv.NewMemory()
	}

	st := store.New(store.Options{KV: kvs, Logger: log})

	if *seed != "" {
		raw, err := os.ReadFile(*seed)
		if err != nil {
			log.Fatalw("read seed file", "error", err)
		}
		data := map[string][]store.Row{}
		if err := json.Unmarshal(raw, &data); err != nil {
			log.Fatalw("decode seed file", "error", err)
		}
		st.Seed(data)
		log.Infow("seeded database", "tables", len(data))
	}

	names := st.TableNames()
	if len(names) == 0 {
		fmt.Println("database is empty")
		return
	}
	for _, name := range names {
		fmt.Printf("%s\t%d rows\n", name, len(st.Rows(name)))
	}
}
