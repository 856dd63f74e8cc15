package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imyousuf/CodeContext/internal/engine"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Index a directory and re-index it whenever files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			e, err := g.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			// Set up signal handling.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (backend: %s)\n", root, e.Backend())
			return e.Watch(ctx, root, func(r engine.WatchResult) {
				stamp := time.Now().Format("15:04:05")
				if r.Err != nil {
					fmt.Fprintf(out, "[%s] re-index failed: %v\n", stamp, r.Err)
					return
				}
				what := "initial index"
				if len(r.Changes) > 0 {
					what = fmt.Sprintf("%d change(s), first %s", len(r.Changes), r.Changes[0].Path)
				}
				fmt.Fprintf(out, "[%s] %s: %d nodes, %d files, %d calls linked\n",
					stamp, what, r.Nodes, r.Stats.FilesIndexed, r.Stats.CallsLinked)
			})
		},
	}
	return cmd
}
