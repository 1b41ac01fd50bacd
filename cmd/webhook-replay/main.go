package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sungwon/mailbridge/internal/archive"
	"github.com/sungwon/mailbridge/internal/config"
	"github.com/sungwon/mailbridge/internal/logger"
	"github.com/sungwon/mailbridge/internal/webhook"
)

type options struct {
	configPath string
	baseURL    string
	secret     string
	header     string
	archiveKey string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "webhook-replay [file]",
		Short: "Sign a webhook body and POST it to a running bridge",
		Long: "Reads a webhook JSON body from a file or from the webhook archive, " +
			"signs it with the configured signing secret and posts it to the bridge's webhook path.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "config", "directory containing config.yaml")
	cmd.Flags().StringVar(&opts.baseURL, "url", "", "bridge base URL (default http://localhost:<api.port>)")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "signing secret (overrides webhook.signing_secret)")
	cmd.Flags().StringVar(&opts.header, "header", "", "signature header (overrides webhook.signature_header)")
	cmd.Flags().StringVar(&opts.archiveKey, "archive-key", "", "replay an archived body by key instead of a file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}

func run(cmd *cobra.Command, opts options, args []string) error {
	if (len(args) == 1) == (opts.archiveKey != "") {
		return errors.New("provide exactly one of a file argument or --archive-key")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Webhook.Path == "" {
		return errors.New("webhook.path is not configured")
	}

	secret := firstNonEmpty(opts.secret, cfg.Webhook.SigningSecret)
	if secret == "" {
		return errors.New("signing secret is required (webhook.signing_secret or --secret)")
	}
	header := firstNonEmpty(opts.header, cfg.Webhook.SignatureHeader, webhook.DefaultSignatureHeader)
	baseURL := firstNonEmpty(opts.baseURL, fmt.Sprintf("http://localhost:%d", cfg.API.Port))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	var body []byte
	if opts.archiveKey != "" {
		arch, err := archive.New(ctx, archive.Config{
			Type:       cfg.Archive.Type,
			Path:       cfg.Archive.Path,
			S3Bucket:   cfg.Archive.S3Bucket,
			S3Prefix:   cfg.Archive.S3Prefix,
			S3Endpoint: cfg.Archive.S3Endpoint,
			S3Region:   cfg.Archive.S3Region,
		}, logger.New("warn"))
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		if body, err = arch.Load(ctx, opts.archiveKey); err != nil {
			return fmt.Errorf("load archived body %s: %w", opts.archiveKey, err)
		}
	} else {
		if body, err = os.ReadFile(args[0]); err != nil {
			return fmt.Errorf("read body: %w", err)
		}
	}

	target := strings.TrimRight(baseURL, "/") + cfg.Webhook.Path
	status, respBody, err := replay(ctx, http.DefaultClient, target, header, secret, body)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n%s\n", status, http.StatusText(status), respBody)
	if status >= 300 {
		return fmt.Errorf("bridge responded with status %d", status)
	}
	return nil
}

// replay signs body and posts it to target.
func replay(ctx context.Context, client *http.Client, target, header, secret string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, webhook.Sign(body, secret))

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, strings.TrimSpace(string(respBody)), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
