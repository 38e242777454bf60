// Command libinspect prints a summary of a Lutrin library database.
// The daemon must be stopped: both backends hold an exclusive lock.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/lutrinapp/lutrin/internal/config"
	"github.com/lutrinapp/lutrin/internal/domain"
	"github.com/lutrinapp/lutrin/internal/store"
	"github.com/lutrinapp/lutrin/internal/store/sqlite"
)

func main() {
	dataPath := flag.String("data-path", os.ExpandEnv("$HOME/Lutrin/data"), "Lutrin data directory")
	backend := flag.String("backend", config.BackendBadger, "Store backend (badger, sqlite)")
	owner := flag.String("owner", "", "Only show documents of this owner")
	flag.Parse()

	quiet := slog.New(slog.DiscardHandler)

	var (
		lib store.Library
		err error
	)
	switch *backend {
	case config.BackendSQLite:
		lib, err = sqlite.Open(filepath.Join(*dataPath, "library.db"), quiet, nil)
	case config.BackendBadger:
		lib, err = store.New(filepath.Join(*dataPath, "db"), quiet, nil)
	default:
		log.Fatalf("Unknown backend %q", *backend)
	}
	if err != nil {
		log.Fatalf("Failed to open library: %v", err)
	}
	defer lib.Close()

	ctx := context.Background()
	var docs []*domain.Document
	if *owner != "" {
		docs, err = lib.ListByOwner(ctx, *owner)
	} else {
		docs, err = lib.ListAll(ctx)
	}
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	fmt.Println("=== Library Inspection ===")
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tTITLE\tCHAPTERS\tLAST READ\tCATEGORY")

	owners := make(map[string]int)
	categories := make(map[domain.Category]int)
	totalChapters := 0
	for _, doc := range docs {
		owners[doc.OwnerID]++
		categories[doc.Category()]++
		totalChapters += doc.ChapterCount

		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
			doc.ID, doc.OwnerID, doc.Title, doc.ChapterCount,
			doc.ReadingProgress.LastChapterRead, doc.Category())
	}
	tw.Flush()

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Total documents: %d\n", len(docs))
	fmt.Printf("Owners: %d\n", len(owners))
	for _, c := range []domain.Category{domain.CategoryUnstarted, domain.CategoryInProgress, domain.CategoryFinished} {
		fmt.Printf("  %s: %d\n", c, categories[c])
	}
	if len(docs) > 0 {
		fmt.Printf("Average chapters per document: %.1f\n", float64(totalChapters)/float64(len(docs)))
	}
}
