package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agency-sh/agency/internal/cli"
	"github.com/agency-sh/agency/internal/config"
	"github.com/agency-sh/agency/internal/paths"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var flagProjectRoot string

// resolveProject returns the project root (flag wins, then discovery
// upward from the working directory) and its loaded config.
func resolveProject() (string, *config.Config, error) {
	root := flagProjectRoot
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root, err = paths.FindProjectRoot(cwd)
		if err != nil {
			return "", nil, err
		}
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	return root, cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "agency",
		Short: "Task session manager",
		Long: `Agency keeps one tmux session per task and mirrors the focus of a
task list TUI onto a second terminal: run 'agency tui' in one terminal
and 'agency follow' in another, and the followed terminal always shows
the session of the task under the cursor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", "",
		"project root (default: nearest parent directory containing .agency)")

	rootCmd.AddCommand(
		newDaemonCmd(),
		newFollowCmd(),
		newTuiCmd(),
		newLsCmd(),
		newOverlayCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the agency daemon",
	}

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := resolveProject()
			if err != nil {
				return err
			}
			return cli.DaemonRun(root, Version)
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := resolveProject()
			if err != nil {
				return err
			}
			if err := cli.DaemonStart(root); err != nil {
				return err
			}
			fmt.Println("daemon started")
			return nil
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := resolveProject()
			if err != nil {
				return err
			}
			if err := cli.DaemonStop(root); err != nil {
				return err
			}
			fmt.Println("daemon stopped")
			return nil
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := resolveProject()
			if err != nil {
				return err
			}
			status, err := cli.DaemonStatus(root)
			if err != nil {
				return err
			}
			fmt.Print(cli.FormatDaemonStatus(status))
			return nil
		},
	})

	return daemonCmd
}

func newFollowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow [tui-id]",
		Short: "Mirror a TUI's focused task onto this terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := resolveProject()
			if err != nil {
				return err
			}
			explicit := 0
			if len(args) == 1 {
				explicit, err = strconv.Atoi(args[0])
				if err != nil || explicit <= 0 {
					return fmt.Errorf("invalid tui-id %q", args[0])
				}
			}
			return cli.Follow(root, cfg, explicit)
		},
	}
}

func newTuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the task list",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := resolveProject()
			if err != nil {
				return err
			}
			return cli.RunTui(root, cfg)
		},
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered TUIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := resolveProject()
			if err != nil {
				return err
			}
			return cli.Ls(root, cfg, os.Stdout)
		},
	}
}

// newOverlayCmd is the re-exec target for the follower's overlay child.
// Exit code 0 means the session was started and the follower may attach.
func newOverlayCmd() *cobra.Command {
	var taskID int
	var slug string
	cmd := &cobra.Command{
		Use:    "overlay",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := resolveProject()
			if err != nil {
				return err
			}
			started, err := cli.Overlay(root, cfg, taskID, slug)
			if err != nil {
				return err
			}
			if !started {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&taskID, "task-id", 0, "task id")
	cmd.Flags().StringVar(&slug, "slug", "", "task slug")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agency %s (build %s)\n", Version, Build)
		},
	}
}
