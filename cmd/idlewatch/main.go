package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	serveFlags := &ServeFlags{}
	statusFlags := &StatusFlags{}
	activityFlags := &ActivityFlags{}
	stopFlags := &StopFlags{}

	idlewatchCommand := newCommand()

	root := createRootCommand()
	root.AddCommand(
		createServeCommand(idlewatchCommand, serveFlags),
		createStatusCommand(idlewatchCommand, statusFlags),
		createActivityCommand(idlewatchCommand, activityFlags),
		createStopCommand(idlewatchCommand, stopFlags),
		createVersionCommand(),
	)
	return root
}

// version is overridable at build time via -ldflags "-X main.version=...".
var version = "dev"

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the idlewatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("idlewatch %s\n", version)
		},
	}
}

func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "idlewatch",
		Short: "Presence-driven companion container manager",
		Long: `Idlewatch tails a game server container's logs, tracks player presence,
and starts or stops a companion (headless) container accordingly.

Examples:
  idlewatch serve --config=idlewatch.toml   # Run the daemon
  idlewatch status                          # Show machine state
  idlewatch activity --session=abc123       # Inject a manual login
  idlewatch stop                            # Request a companion stop`,
	}
}

func createServeCommand(c command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the idlewatch daemon",
		Long: `Run the daemon: follow the game server's log stream, track presence,
and drive the companion container's lifecycle until SIGINT/SIGTERM.

Examples:
  idlewatch serve
  idlewatch serve --config=/etc/idlewatch/idlewatch.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return cmd
}

func createStatusCommand(c command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's machine state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8787)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&flags.Watch, "watch", false, "refresh continuously")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 2*time.Second, "watch refresh interval")
	return cmd
}

func createActivityCommand(c command, flags *ActivityFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Inject a manual activity event",
		Long: `Inject activity into the daemon, starting the companion if it is stopped.
With --session the event counts as a login; without it, as anonymous activity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Activity(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Session, "session", "", "session id to register (optional)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8787)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func createStopCommand(c command, flags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Request a companion container stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8787)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}
