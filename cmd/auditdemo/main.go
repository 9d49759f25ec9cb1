// Command auditdemo serves a small orders API over gin, net/http and gRPC with every
// call audited, and calls it once per transport.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rainbow-me/api-audit/common/env"
	"github.com/rainbow-me/api-audit/common/logger"
)

type rootOptions struct {
	environment string
	configDir   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "auditdemo",
		Short:         "Audited orders API playground",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.environment != "" {
				return os.Setenv(env.ApplicationEnvKey, opts.environment)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.environment, "env", "",
		"deployment environment, overrides "+env.ApplicationEnvKey)
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "",
		"directory holding <env>.yaml (default ./cmd/config)")

	cmd.AddCommand(newServeCommand(opts), newCallCommand(opts))
	return cmd
}

// newLogger builds the process logger and installs it as the zap global, which is what
// logger.FromContext falls back to.
func newLogger() (*logger.Logger, error) {
	log, err := logger.InitLogger()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}
