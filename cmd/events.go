/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/postmod/apiserver/config"
	"github.com/postmod/apiserver/internal/mq"
	"github.com/postmod/apiserver/types"
	"github.com/spf13/cobra"
)

var eventsTailTypes []string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect published submission events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print events from the configured channel as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg.Log, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is none; nothing to tail")
		}
		defer broker.Close()

		logger.Info("tailing events", "channel", cfg.MQ.Channel, "backend", cfg.MQ.Backend)
		err = broker.Subscribe(ctx, cfg.MQ.Channel, printEvent(cmd.OutOrStdout(), eventsTailTypes))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringSliceVar(&eventsTailTypes, "type", nil, "only print events of these types (e.g. comment.auto_replied)")
}

// printEvent writes each decodable event on its own line. Undecodable
// payloads are acknowledged and skipped.
func printEvent(w io.Writer, only []string) mq.Handler {
	allowed := make(map[types.EventType]bool, len(only))
	for _, t := range only {
		allowed[types.EventType(t)] = true
	}

	return func(ctx context.Context, msg mq.Message) error {
		var event types.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			fmt.Fprintf(os.Stderr, "skipping message %s: %v\n", msg.ID, err)
			return nil
		}
		if len(allowed) > 0 && !allowed[event.Type] {
			return nil
		}
		line, err := json.Marshal(event)
		if err != nil {
			return nil
		}
		_, err = fmt.Fprintln(w, string(line))
		return err
	}
}
