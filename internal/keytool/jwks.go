package keytool

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	jose "gopkg.in/square/go-jose.v2"
)

// JWKSCmd prints a public key set. During rotation, the output for the outgoing key is merged
// into the file named by AUTH_PREVIOUS_JWKS_FILE.
func JWKSCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jwks",
		Short:   "Print the public JWKS for a key, optionally merged with retired keys",
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := loadKey(v.GetString("key"), v.GetString("kid"))
			if err != nil {
				return err
			}

			set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{material.JWK()}}
			if previous := v.GetString("previous"); previous != "" {
				retired, err := readKeySet(previous)
				if err != nil {
					return err
				}
				for _, key := range retired.Keys {
					if key.KeyID == material.KeyID {
						continue
					}
					set.Keys = append(set.Keys, key.Public())
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		},
	}

	cmd.Flags().String("key", "", "path of the PEM private key")
	cmd.Flags().String("kid", "", "key id override (defaults to the RFC 7638 thumbprint)")
	cmd.Flags().String("previous", "", "JWKS file of retired keys to merge")

	return cmd
}

func readKeySet(path string) (jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	data, err := os.ReadFile(path)
	if err != nil {
		return set, errors.Wrap(err, "read previous key set")
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return set, errors.Wrap(err, "decode previous key set")
	}
	return set, nil
}
