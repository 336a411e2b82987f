package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sealSecretCmd は設定値をKMSで暗号化し、"kms:" 形式で出力する。
func sealSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal-secret [value|-]",
		Short: "Encrypt a token or EncodingAESKey with Cloud KMS for use in configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.KMSKeyName == "" {
				return fmt.Errorf("KMS_KEY_NAME environment variable is required")
			}
			value, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			resolver, closeFn, err := openResolver(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to init KMS client: %w", err)
			}
			defer closeFn()

			sealed, err := resolver.Seal(cmd.Context(), value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
