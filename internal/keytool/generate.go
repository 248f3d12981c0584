package keytool

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spec-kit/token-bridge/internal/keys"
)

// GenerateCmd writes a new private key and prints its kid.
func GenerateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Generate a new signing key",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := v.GetString("out")
			if out == "" {
				return errors.New("--out is required")
			}
			if _, err := os.Stat(out); err == nil && !v.GetBool("force") {
				return errors.Errorf("%s already exists; pass --force to overwrite", out)
			}

			pemBytes, err := keys.GeneratePrivateKeyPEM(v.GetString("alg"), v.GetInt("bits"))
			if err != nil {
				return err
			}
			material, err := keys.ParsePrivateKeyPEM(pemBytes, "")
			if err != nil {
				return errors.Wrap(err, "parse generated key")
			}
			if err := os.WriteFile(out, pemBytes, 0o600); err != nil {
				return errors.Wrap(err, "write key")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", material.Algorithm(), material.KeyID)
			return nil
		},
	}

	cmd.Flags().String("alg", "RS256", "signing algorithm: RS256, ES256 or ES384")
	cmd.Flags().Int("bits", 3072, "RSA key size")
	cmd.Flags().String("out", "", "path of the PEM file to write")
	cmd.Flags().Bool("force", false, "overwrite an existing file")

	return cmd
}
