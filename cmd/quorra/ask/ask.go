// Package askcmder provides the ask command for querying a running Quorra
// server.
package askcmder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quorralabs/quorra/pkg/config"
	"github.com/quorralabs/quorra/pkg/logger"
)

type askCommander struct {
	apiTarget string
	identity  string
	debug     bool

	logger *zap.Logger
}

// askRequest mirrors the POST /v1/ask request body.
type askRequest struct {
	ExternalIdentity string `json:"external_identity"`
	QueryText        string `json:"query_text"`
	MessageID        string `json:"message_id,omitempty"`
}

// askResponse mirrors the POST /v1/ask response body.
type askResponse struct {
	ConversationID string   `json:"conversation_id"`
	CompletionText string   `json:"completion_text"`
	Model          string   `json:"model"`
	SourceLocators []string `json:"source_locators"`
	Degraded       bool     `json:"degraded"`
}

// errorResponse mirrors the error body returned for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

const askLongDesc string = `Ask a question against a running Quorra server.

With a question as the argument, sends a single request and prints the
answer. Without arguments, starts an interactive loop where each question
continues the same conversation.

The server is addressed by --api-target, falling back to client.api_target
from the config file.

Examples:
  quorra ask "What does the refund policy say about partial returns?"
  quorra ask --identity support-shell-42
  quorra ask --api-target http://staging.internal:8080 "Who approved v2?"`

const askShortDesc string = "Ask a question against a running Quorra server"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			if len(args) == 1 {
				return cmder.runOnce(args[0])
			}
			return cmder.runInteractive()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Quorra API server URL")
	cmd.Flags().StringVarP(&cmder.identity, "identity", "i", "", "External identity for the conversation (defaults to a generated id)")

	return cmd
}

func (c *askCommander) runOnce(question string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	resp, err := c.ask(question)
	if err != nil {
		return err
	}

	c.printAnswer(resp)
	return nil
}

func (c *askCommander) runInteractive() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	fmt.Println()
	fmt.Printf("  Connected to %s\n", c.apiTarget)
	fmt.Printf("  Type your question and press Enter. /exit or Ctrl+D to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		resp, err := c.ask(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  error: %v\n", err)
			continue
		}

		c.printAnswer(resp)
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// ask sends a single question to the server. The same identity is reused
// across calls so consecutive questions continue one conversation.
func (c *askCommander) ask(question string) (*askResponse, error) {
	if c.identity == "" {
		c.identity = fmt.Sprintf("cli-%s", uuid.NewString())
	}

	body, err := json.Marshal(askRequest{
		ExternalIdentity: c.identity,
		QueryText:        question,
		MessageID:        uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	url := strings.TrimSuffix(c.apiTarget, "/") + "/v1/ask"

	c.logger.Debug("sending ask request",
		zap.String("url", url),
		zap.String("identity", c.identity),
	)

	httpResp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", httpResp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("server returned %d", httpResp.StatusCode)
	}

	var resp askResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &resp, nil
}

func (c *askCommander) printAnswer(resp *askResponse) {
	fmt.Println()
	fmt.Println(resp.CompletionText)

	if len(resp.SourceLocators) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, locator := range resp.SourceLocators {
			fmt.Printf("  - %s\n", locator)
		}
	}

	if resp.Degraded {
		fmt.Println()
		fmt.Println("Note: the knowledge base was unavailable; this answer used conversation history only.")
	}
}
