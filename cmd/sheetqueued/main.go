package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// main 是 sheetqueue 守护进程与命令行工具的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Fatalf("sheetqueued 运行失败: %v", err)
	}
}
