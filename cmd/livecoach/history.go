package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/livecoach/config"
	"github.com/AltairaLabs/livecoach/history"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List recorded sessions or print the turns of one session",
		Long: `Without arguments, list every session with recorded turns. With a session
id, print its turns oldest first, or remove them with --delete.

Only the redis backend keeps history between runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if cfg.History.Backend != config.HistoryRedis {
				return fmt.Errorf("history backend %q does not keep history between runs; use %q",
					cfg.History.Backend, config.HistoryRedis)
			}
			if cfg.History.RedisAddr == "" {
				return errors.New("history.redis_addr is required for the redis backend")
			}
			store, closeStore, err := openHistory(cfg.History)
			if err != nil {
				return err
			}
			defer closeStore()

			del, _ := cmd.Flags().GetBool("delete")
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return showHistory(cmd.Context(), cmd.OutOrStdout(), store, id, del)
		},
	}
	cmd.Flags().Bool("delete", false, "Delete the history of the given session")
	cmd.Flags().String("redis-addr", "", "Redis address of the history store")
	_ = v.BindPFlag("history.redis_addr", cmd.Flags().Lookup("redis-addr"))
	return cmd
}

// showHistory lists sessions when id is empty, otherwise prints or deletes
// the turns of id.
func showHistory(ctx context.Context, w io.Writer, store history.Store, id string, del bool) error {
	if id == "" {
		if del {
			return errors.New("--delete needs a session id")
		}
		return listSessions(ctx, w, store)
	}

	if del {
		if err := store.Delete(ctx, id); err != nil {
			return historyError(id, err)
		}
		fmt.Fprintf(w, "Deleted history for %s\n", id)
		return nil
	}

	turns, err := store.Turns(ctx, id)
	if err != nil {
		return historyError(id, err)
	}
	for _, e := range turns {
		fmt.Fprintf(w, "[%s]\n> %s\n%s\n\n", e.Timestamp.Local().Format(time.DateTime), e.Transcription, e.AIResponse)
	}
	return nil
}

func listSessions(ctx context.Context, w io.Writer, store history.Store) error {
	ids, err := store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No recorded sessions.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTURNS\tSTARTED")
	for _, id := range ids {
		turns, err := store.Turns(ctx, id)
		if errors.Is(err, history.ErrNotFound) {
			continue
		}
		if err != nil {
			return historyError(id, err)
		}
		started := "-"
		if len(turns) > 0 {
			started = turns[0].Timestamp.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", id, len(turns), started)
	}
	return tw.Flush()
}

func historyError(id string, err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no history for session %q: %w", id, err)
	}
	return fmt.Errorf("failed to read history for session %q: %w", id, err)
}
