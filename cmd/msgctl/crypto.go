package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"callback-service/internal/msgcrypt"
)

// signCmd は署名の計算コマンド。
func signCmd() *cobra.Command {
	var timestamp, nonce string
	cmd := &cobra.Command{
		Use:   "sign [message|-]",
		Short: "Compute msg_signature for a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crypt, err := openCrypt(cmd.Context())
			if err != nil {
				return err
			}
			message, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			sig, err := crypt.GenerateSignature(timestamp, nonce, message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Timestamp (required)")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce (required)")
	cmd.MarkFlagRequired("timestamp")
	cmd.MarkFlagRequired("nonce")
	return cmd
}

// encryptCmd は応答メッセージの暗号化コマンド。
func encryptCmd() *cobra.Command {
	var timestamp, nonce string
	cmd := &cobra.Command{
		Use:   "encrypt [message|-]",
		Short: "Encrypt a reply message into a signed envelope",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crypt, err := openCrypt(cmd.Context())
			if err != nil {
				return err
			}
			message, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			var opts []msgcrypt.ReplyOption
			if timestamp != "" {
				opts = append(opts, msgcrypt.WithTimestamp(timestamp))
			}
			if nonce != "" {
				opts = append(opts, msgcrypt.WithNonce(nonce))
			}
			out, err := crypt.EncryptReply(message, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Timestamp (defaults to now in milliseconds)")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce (defaults to a random number)")
	return cmd
}

// decryptCmd は受信データの検証・復号コマンド。
func decryptCmd() *cobra.Command {
	var signature, timestamp, nonce string
	cmd := &cobra.Command{
		Use:   "decrypt [body|-]",
		Short: "Verify and decrypt a received callback body",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crypt, err := openCrypt(cmd.Context())
			if err != nil {
				return err
			}
			body, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			plain, msg, err := crypt.DecryptMsgRaw(signature, timestamp, nonce, body)
			if err != nil {
				return err
			}
			if output != "json" {
				fmt.Fprintln(cmd.OutOrStdout(), plain)
				return nil
			}
			b, err := json.MarshalIndent(msg, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding message: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "msg_signature (required)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Timestamp (required)")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce (required)")
	cmd.MarkFlagRequired("signature")
	cmd.MarkFlagRequired("timestamp")
	cmd.MarkFlagRequired("nonce")
	return cmd
}

// verifyURLCmd はURL検証リクエストの検証コマンド。
func verifyURLCmd() *cobra.Command {
	var signature, timestamp, nonce, echoStr string
	cmd := &cobra.Command{
		Use:   "verify-url",
		Short: "Verify a URL verification request and print the echo plaintext",
		RunE: func(cmd *cobra.Command, args []string) error {
			crypt, err := openCrypt(cmd.Context())
			if err != nil {
				return err
			}
			plain, err := crypt.VerifyURL(signature, timestamp, nonce, echoStr)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), plain)
			return nil
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "msg_signature (required)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Timestamp (required)")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce (required)")
	cmd.Flags().StringVar(&echoStr, "echostr", "", "echostr (required)")
	cmd.MarkFlagRequired("signature")
	cmd.MarkFlagRequired("timestamp")
	cmd.MarkFlagRequired("nonce")
	cmd.MarkFlagRequired("echostr")
	return cmd
}
