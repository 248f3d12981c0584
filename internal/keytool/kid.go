package keytool

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spec-kit/token-bridge/internal/keys"
)

// KidCmd prints the thumbprint key id the service derives when AUTH_SIGNING_KEY_ID is unset.
func KidCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kid",
		Short:   "Print the key id of a signing key",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := loadKey(v.GetString("key"), "")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), material.KeyID)
			return nil
		},
	}

	cmd.Flags().String("key", "", "path of the PEM private key")

	return cmd
}

func loadKey(path, kid string) (*keys.Material, error) {
	if path == "" {
		return nil, errors.New("--key is required")
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key")
	}
	return keys.ParsePrivateKeyPEM(pemBytes, kid)
}
