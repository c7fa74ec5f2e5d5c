// Command openai-plugin 在命令行中驱动插件，便于调试设置与上游兼容性
//
//	openai-plugin generate "Say hello"
//	openai-plugin --config settings.yaml embed "some text"
//	openai-plugin --set OPENAI_BASE_URL=http://localhost:11434/v1 models
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := execute(ctx, a, newRootCmdWith(a)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
