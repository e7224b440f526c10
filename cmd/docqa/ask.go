package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/docqa/internal/cli"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/spf13/cobra"
)

var (
	flagAskServer string
	flagAskFormat string
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask a question about the indexed document",
	Long: `Ask a question about the indexed document. The question is all remaining
arguments joined by spaces. With --server the question is sent to a running
docqa server; otherwise the index is loaded (or built) locally.`,
	Example: `  docqa ask How did total assets change?
  docqa ask --server http://localhost:8000 "What is the outlook?"
  docqa ask --format json What was revenue`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&flagAskServer, "server", "", "base URL of a running docqa server")
	askCmd.Flags().StringVar(&flagAskFormat, "format", string(cli.OutputText), "output format: text or json")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(flagAskFormat)
	if err != nil {
		return err
	}
	question := cli.BuildQuestion(args)
	if question == "" {
		return errors.New("question cannot be empty")
	}

	if flagAskServer != "" {
		answer, err := askViaHTTP(cmd.Context(), flagAskServer, question)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		return cli.WriteAnswer(cmd.OutOrStdout(), answer, format)
	}

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	answer, err := components.Service.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	return cli.WriteAnswer(cmd.OutOrStdout(), answer, format)
}

// askViaHTTP posts question to a running server's /ask/ route.
func askViaHTTP(ctx context.Context, serverURL, question string) (*models.Answer, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := json.Marshal(models.AskRequest{Query: question})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/ask/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &models.Answer{Query: out.Query, Text: out.Answer}, nil
}
