package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/pkg/carrier"
	"github.com/i5heu/sealdex/pkg/client"
)

// Small demonstration flow against a running sealdex server: upload one
// file under a keyword, search the keyword, retrieve every file the search
// returns, and print the server's table statistics.
func main() {
	serverAddr := flag.String("server", "localhost:4242", "server address")
	statePath := flag.String("state", "sealdex-state.json", "client state file")
	flag.Parse()

	log := logrus.New()
	ctx := context.Background()

	store, err := carrier.Dial(ctx, *serverAddr)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	cl, err := client.New(store, client.Config{StatePath: *statePath, Logger: log})
	if err != nil {
		log.Fatal(err)
	}

	fileID, err := cl.UploadFile(ctx, []byte("reports"), []byte("quarterly numbers\n"), "q3.txt")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("uploaded file %s under keyword %q\n", fileID, "reports")

	records, err := cl.Search(ctx, []byte("reports"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("keyword %q has %d entries:\n", "reports", len(records))
	for _, rec := range records {
		name, data, err := cl.RetrieveFile(ctx, rec.DocID, rec.FileKey)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  %s  %s (%d bytes)\n", rec.DocID, name, len(data))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("server holds %d nodes (%d bytes) and %d files (%d bytes)\n",
		stats.NodeCount, stats.NodeBytes, stats.FileCount, stats.FileBytes)
}
