package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/metrics"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/plugin"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/runtime"
	"github.com/lwmacct/251217-go-plugin-openai/pkg/llm/settings"
)

// app 命令之间共享的状态
type app struct {
	configPath  string
	logLevel    string
	overrides   map[string]string
	system      string
	showUsage   bool
	showMetrics bool

	// lookupEnv 为 nil 时读取进程环境变量
	lookupEnv settings.LookupEnv

	plugin  *plugin.Plugin
	rt      *runtime.Memory
	metrics *metrics.Collector
}

func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "openai-plugin",
		Short:         "Drive the OpenAI-compatible model plugin from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "settings file (yaml or json) with OPENAI_* keys")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringToStringVar(&a.overrides, "set", nil, "override a setting, e.g. --set OPENAI_SMALL_MODEL=gpt-4o-mini")
	flags.StringVar(&a.system, "system", "", "system prompt used when a command does not pass one")
	flags.BoolVar(&a.showUsage, "usage", false, "print token usage events to stderr")
	flags.BoolVar(&a.showMetrics, "metrics", false, "print collected metrics to stderr")

	root.AddCommand(
		newInitCmd(a),
		newModelsCmd(a),
		newGenerateCmd(a),
		newObjectCmd(a),
		newEmbedCmd(a),
		newTokenizeCmd(a),
		newDetokenizeCmd(a),
		newImageCmd(a),
		newDescribeCmd(a),
		newTranscribeCmd(a),
		newSpeakCmd(a),
	)
	return root
}

// execute 运行命令；命令失败时仍输出 --usage 与 --metrics
func execute(ctx context.Context, a *app, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.report(root))
}

// setup 加载设置文件、合并 --set，并构建插件
func (a *app) setup(cmd *cobra.Command) error {
	level, err := parseLevel(a.logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	values := map[string]string{}
	if a.configPath != "" {
		file, err := settings.LoadFile(a.configPath)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		maps.Copy(values, file)
	}
	maps.Copy(values, a.overrides)

	a.rt = runtime.NewMemory(
		runtime.WithSettings(values),
		runtime.WithSystemPrompt(a.system),
	)
	a.metrics = metrics.NewCollector()

	opts := []plugin.Option{
		plugin.WithLogger(logger),
		plugin.WithMetrics(a.metrics),
	}
	if a.lookupEnv != nil {
		opts = append(opts, plugin.WithEnv(a.lookupEnv))
	}
	a.plugin = plugin.New(opts...)
	return nil
}

// report 按需输出用量事件与指标
func (a *app) report(cmd *cobra.Command) error {
	w := cmd.ErrOrStderr()
	if a.showUsage && a.rt != nil {
		for _, ev := range a.rt.Events() {
			fmt.Fprintf(w, "usage: type=%s model=%s input=%d output=%d total=%d\n",
				ev.Type, ev.Model, ev.Tokens.InputTokens, ev.Tokens.OutputTokens, ev.Tokens.TotalTokens)
		}
	}
	if a.showMetrics && a.metrics != nil {
		return writeMetrics(w, a.metrics)
	}
	return nil
}

func writeMetrics(w io.Writer, c *metrics.Collector) error {
	families, err := c.Registry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
