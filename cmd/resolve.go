package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/apptrail-sh/releasecheck/internal/config"
	"github.com/apptrail-sh/releasecheck/internal/gitremote"
)

func newResolveSHACommand() *cobra.Command {
	var (
		configPath string
		gitBinary  string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve-sha [url branch]",
		Short: "Resolve a git branch to its tip commit SHA without cloning",
		Example: `  releasecheck resolve-sha https://github.com/org/operator.git master
  releasecheck resolve-sha --config releasecheck.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected url and branch arguments, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			resolver := gitremote.NewResolver(
				&gitremote.GitCLI{Runner: gitremote.ExecRunner{}, Binary: gitBinary},
				ctrl.Log.WithName("gitremote"))

			if len(args) == 2 {
				sha, err := resolver.ResolveSHA(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), sha)
				return nil
			}

			if configPath == "" {
				return fmt.Errorf("either url and branch arguments or --config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return resolveRemotes(ctx, cmd.OutOrStdout(), resolver, cfg.Remotes)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Resolve every remote listed in this releasecheck YAML configuration file")
	cmd.Flags().StringVar(&gitBinary, "git", "git", "Path to the git binary")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Deadline for the remote queries, 0 disables it")

	return cmd
}

// resolveRemotes prints "<url> <branch> <sha>" per remote and stops at the first failure
func resolveRemotes(ctx context.Context, out io.Writer, resolver *gitremote.Resolver, remotes []config.Remote) error {
	if len(remotes) == 0 {
		return fmt.Errorf("no remotes configured")
	}
	for _, remote := range remotes {
		ref, err := resolver.Resolve(ctx, remote.URL, remote.Branch)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s %s\n", ref.URL, ref.Branch, ref.SHA)
	}
	return nil
}
