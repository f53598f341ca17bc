// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/bassosimone/udprpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var questCmd = &cobra.Command{
	Use:   "quest",
	Short: "Send one quest and print its answer",
	Long: `Send one quest to the server at --endpoint and print the answer payload.

Inbound quests pushed by the server while waiting are answered with an
unknown-method error.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: runQuest,
}

func init() {
	flags := questCmd.Flags()
	flags.String("endpoint", "127.0.0.1:9000", "server endpoint as host:port")
	flags.String("method", "", "method name")
	flags.String("payload", "", "request payload")
	flags.Bool("one-way", false, "do not wait for an answer")
	flags.Duration("timeout", udprpc.DefaultQuestTimeout, "time to wait for the answer")
	flags.Int("retries", 3, "connect attempts before giving up")
	flags.Int("workers", 2, "workers serving inbound quests")
	flags.Int("queue", 64, "pending inbound quests before the server is told to back off")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g., :9100)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// newLogger returns a text logger writing to stderr at the configured level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// serveMetrics starts the metrics server and returns a function stopping it.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metricsServerFailed", slog.Any("err", err), slog.String("addr", addr))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// unknownMethod answers every inbound two-way quest with an error.
var unknownMethod = udprpc.QuestProcessorFunc(func(quest *udprpc.Quest, info *udprpc.ConnectionInfo) (*udprpc.Answer, error) {
	if !quest.IsTwoWay() {
		return nil, nil
	}
	return udprpc.NewErrorAnswer(quest, udprpc.CodeUnknownMethod, "unknown method: "+quest.Method)
})

func runQuest(cmd *cobra.Command, args []string) error {
	method := viper.GetString("method")
	if method == "" {
		return errors.New("missing --method")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	if addr := viper.GetString("metrics-addr"); addr != "" {
		defer serveMetrics(addr, logger)()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	udprpc.StartSharedQuestPool(viper.GetInt("workers"), viper.GetInt("queue"))
	defer udprpc.StopSharedQuestPool()

	engine := udprpc.NewPollEngine(logger)
	defer engine.Close()
	cfg := udprpc.NewConfig()
	cfg.Engine = engine
	cfg.QuestTimeout = viper.GetDuration("timeout")

	client, err := udprpc.NewUDPClientFromEndpoint(ctx, cfg, viper.GetString("endpoint"), false, logger)
	if err != nil {
		return err
	}
	client.ObserveConn = udprpc.Compose2[net.Conn, net.Conn, net.Conn](client.ObserveConn, udprpc.NewCancelWatchFunc(cfg, logger))
	client.QuestProcessor = unknownMethod

	if err := client.ConnectWithRetry(ctx, viper.GetInt("retries")); err != nil {
		return err
	}
	defer client.Close()

	quest := &udprpc.Quest{
		Method:  method,
		Payload: []byte(viper.GetString("payload")),
		TwoWay:  !viper.GetBool("one-way"),
	}
	answer, err := client.SendQuest(ctx, quest)
	if err != nil {
		return err
	}
	if answer == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s (seq %d)\n", quest.Method, quest.Seq)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", answer.Payload)
	return nil
}
