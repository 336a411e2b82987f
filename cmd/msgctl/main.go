// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"callback-service/config"
	"callback-service/internal/infra"
	"callback-service/internal/msgcrypt"
	"callback-service/internal/usecase"
)

const version = "1.0.0"

var (
	apiURL    string
	output    string
	timeout   time.Duration
	token     string
	aesKey    string
	receiveID string
	format    string
)

// HTTPクライアント
var httpClient *http.Client

// 設定
var cfg *config.Config

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "msgctl",
		Short:         "Callback message crypto CLI",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			if apiURL == "" {
				apiURL = os.Getenv("MSGCTL_API_URL")
			}
			if token == "" {
				token = cfg.CallbackToken
			}
			if aesKey == "" {
				aesKey = cfg.CallbackEncodingAESKey
			}
			if receiveID == "" {
				receiveID = cfg.CallbackReceiveID
			}
			if format == "" {
				format = cfg.CallbackFormat
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set MSGCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Callback token (or set CALLBACK_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&aesKey, "aes-key", "", "43-character EncodingAESKey (or set CALLBACK_ENCODING_AES_KEY)")
	rootCmd.PersistentFlags().StringVar(&receiveID, "receive-id", "", "Receive ID: corpid or suite id (or set CALLBACK_RECEIVE_ID)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "Envelope format: xml, json (or set CALLBACK_FORMAT)")

	// サブコマンド登録
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(verifyURLCmd())
	rootCmd.AddCommand(sealSecretCmd())
	rootCmd.AddCommand(messagesCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(noncesCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "msgctl version %s\n", version)
		},
	}
}

// openResolver はKMS_KEY_NAMEが設定されていればKMS付きのSecretResolverを返す。
func openResolver(ctx context.Context) (*usecase.SecretResolver, func(), error) {
	if cfg.KMSKeyName == "" {
		return usecase.NewSecretResolver(nil), func() {}, nil
	}
	kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
	if err != nil {
		return nil, nil, err
	}
	return usecase.NewSecretResolver(kmsClient), func() { kmsClient.Close() }, nil
}

// openCrypt はフラグと環境変数からMsgCryptを生成する。
func openCrypt(ctx context.Context) (*msgcrypt.MsgCrypt, error) {
	if token == "" || aesKey == "" {
		return nil, fmt.Errorf("--token and --aes-key are required (or set CALLBACK_TOKEN and CALLBACK_ENCODING_AES_KEY)")
	}
	var resolver *usecase.SecretResolver
	if strings.HasPrefix(token, usecase.SecretPrefix) || strings.HasPrefix(aesKey, usecase.SecretPrefix) {
		r, closeFn, err := openResolver(ctx)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		resolver = r
	} else {
		resolver = usecase.NewSecretResolver(nil)
	}
	return usecase.OpenMsgCrypt(ctx, resolver, usecase.CryptSettings{
		Token:          token,
		EncodingAESKey: aesKey,
		ReceiveID:      receiveID,
		Format:         format,
	})
}

// readInput は引数、引数が無いか "-" の場合は標準入力から入力を読み込む。
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// messagesCmd は受信メッセージの参照コマンド。
func messagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Inspect received callback messages via the API",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			body, err := apiGet("/v1/messages?" + q.Encode())
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}

			var result struct {
				Messages []struct {
					ID         string `json:"id"`
					MsgType    string `json:"msg_type"`
					Event      string `json:"event"`
					FromUser   string `json:"from_user"`
					Status     string `json:"status"`
					ReceivedAt string `json:"received_at"`
				} `json:"messages"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			if len(result.Messages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
				return nil
			}
			for _, m := range result.Messages {
				kind := m.MsgType
				if m.Event != "" {
					kind += "/" + m.Event
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s  %-12s  %-8s  %s\n", m.ID, kind, m.FromUser, m.Status, m.ReceivedAt)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages")

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a message with its decrypted payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiGet("/v1/messages/" + url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result map[string]json.RawMessage
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, result["payload"], "", "  "); err != nil {
				return fmt.Errorf("parsing payload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

// apiGet はAPIにGETリクエストを送信し、200以外はエラーとして返す。
func apiGet(path string) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set MSGCTL_API_URL)")
	}

	resp, err := httpClient.Get(strings.TrimRight(apiURL, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
