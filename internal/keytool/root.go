// Package keytool implements the operator CLI for service-token signing keys: generating a key,
// printing its kid, and publishing key sets during rotation.
package keytool

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCmd builds the keytool command tree. Flags can also be set through TOKEN_BRIDGE_* env vars.
func RootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "keytool",
		Short:         "Manage service token signing keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initConfig(v)
			return nil
		},
	}

	cmd.AddCommand(GenerateCmd(v))
	cmd.AddCommand(KidCmd(v))
	cmd.AddCommand(JWKSCmd(v))

	return cmd
}

// InitAndExecute runs the CLI and exits non-zero on failure.
func InitAndExecute() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(v *viper.Viper) {
	v.SetEnvPrefix("TOKEN_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func bindFlags(v *viper.Viper) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return v.BindPFlags(cmd.Flags())
	}
}
