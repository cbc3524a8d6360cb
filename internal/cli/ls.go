package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/daemon/rpc"
)

// Ls prints the TUIs registered for the project.
func Ls(projectRoot string, cfg *config.Config, w io.Writer) error {
	client, err := Connect(projectRoot, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := client.Call(ctx, "tui.list", rpc.ListRequest{Project: projectRoot})
	if err != nil {
		return fmt.Errorf("list TUIs: %w", err)
	}
	var list rpc.ListResponse
	if err := unmarshal(raw, &list); err != nil {
		return fmt.Errorf("list TUIs: %w", err)
	}

	if len(list.Tuis) == 0 {
		fmt.Fprintln(w, "no TUIs registered")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TUI\tPID\tFOCUS")
	for _, info := range list.Tuis {
		focus := "-"
		if info.FocusedTask != nil {
			focus = fmt.Sprintf("%d", *info.FocusedTask)
		}
		fmt.Fprintf(tw, "#%d\t%d\t%s\n", info.TuiID, info.PID, focus)
	}
	return tw.Flush()
}
