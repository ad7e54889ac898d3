package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/bootstrap"
	"github.com/aihub/knowledge-sync/internal/config"
	"github.com/aihub/knowledge-sync/internal/knowledge"
	"github.com/aihub/knowledge-sync/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.Metrics.Start()
	app.Coordinator.Start(ctx)

	// 事件源各自独立运行，任何一个退出都不影响其它
	for _, src := range app.Sources {
		src := src
		go func() {
			if err := src.Run(ctx, app.Coordinator.Dispatch); err != nil && ctx.Err() == nil {
				logger.Error("event source exited", zap.Error(err))
			}
		}()
	}

	logger.Info("🚀 Knowledge sync service started",
		zap.Int("sources", len(app.Sources)),
		zap.String("metrics_port", config.AppConfig.Server.MetricsPort))

	if config.AppConfig.Query.Interactive {
		go runQueryLoop(ctx, app.QueryEngine, cancel)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	cancel()
}

// runQueryLoop 交互式查询，从标准输入读取问题
func runQueryLoop(ctx context.Context, engine *knowledge.QueryEngine, cancel context.CancelFunc) {
	fmt.Println("Ready to answer questions (type 'exit' to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			cancel()
			return
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			cancel()
			return
		}

		answer, err := engine.Query(ctx, query)
		if err != nil {
			fmt.Printf("query failed: %v\n", err)
			continue
		}
		printAnswer(answer)
	}
}

func printAnswer(answer *knowledge.Answer) {
	if !answer.Answerable {
		fmt.Println("No relevant context found in the indexed documents.")
		return
	}
	if answer.GroundedAnswer != "" {
		fmt.Println(answer.GroundedAnswer)
	} else {
		for i, chunk := range answer.ContextChunks {
			fmt.Printf("[%d] (%.4f) %s\n", i+1, chunk.Score, chunk.Text)
		}
	}
	fmt.Printf("sources: %s\n", strings.Join(answer.Sources, ", "))
}
