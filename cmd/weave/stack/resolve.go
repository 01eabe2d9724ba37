package stack

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/weave/pkg/config"
	"github.com/papercomputeco/weave/pkg/logger"
)

// Resolve loads the layered configuration for cmd and binds the registered
// flags named by flagKeys over it. It returns the viper instance and the
// --config-dir override.
func Resolve(cmd *cobra.Command, flagKeys []string) (*viper.Viper, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
	return v, configDir, nil
}

// CommandLogger builds the console logger honoring --debug.
func CommandLogger(cmd *cobra.Command) *zap.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// Owner returns the owner ID from --owner or client.owner.
func Owner(v *viper.Viper) (string, error) {
	owner := v.GetString("client.owner")
	if owner == "" {
		return "", fmt.Errorf("an owner is required: pass --owner or run: weave config set client.owner <id>")
	}
	return owner, nil
}
