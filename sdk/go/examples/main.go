package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"SheetQueue/internal/api"
	"SheetQueue/internal/table"
	"SheetQueue/internal/task"
	"SheetQueue/sdk/go/sheetqueue"
)

func main() {
	dir, err := os.MkdirTemp("", "sheetqueue-demo")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "listings.csv")
	content := "Id,Status,Title,Image\n1,,Poster,poster.png\n2,done,Mug,mug.png\n3,,Shirt,shirt.png\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}

	store := table.NewFileStore(table.WithRootDir(dir))
	svc, err := task.NewService(store, nil, nil)
	if err != nil {
		panic(err)
	}
	srv := httptest.NewServer(api.NewServer(":0", svc, store).Handler())
	defer srv.Close()

	client, err := sheetqueue.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := client.Drain(ctx, path, func(_ context.Context, row sheetqueue.Row) error {
		fmt.Printf("processing Id=%v title=%v\n", row["Id"], row["Title"])
		return nil
	})
	if err != nil {
		panic(err)
	}
	stats, err := client.Stats(ctx, path)
	if err != nil {
		panic(err)
	}
	fmt.Printf("completed %d rows, %d/%d done\n", n, stats.Done, stats.Total)
}
