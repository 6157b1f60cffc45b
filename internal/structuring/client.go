package structuring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nmorgan8/scanforge/internal/database/models"
	"github.com/nmorgan8/scanforge/internal/scanner"
	"github.com/nmorgan8/scanforge/pkg/config"
)

const systemPrompt = `You convert raw security scanner output into structured JSON.
Respond with a JSON array of finding objects and nothing else. Emit an empty
array when the input contains no findings. Never invent findings that are not
present in the input.`

// Client calls an external free-text-to-JSON structuring service
// (Anthropic-compatible messages API). The service is non-deterministic and
// fallible: the client enforces a strict output contract and fails closed on
// anything malformed, so a bad response never yields partially-populated
// findings.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg *config.StructuringConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

var _ scanner.Structurer = (*Client)(nil)

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// rawFinding is the wire shape the service must emit per finding.
type rawFinding struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Contract    string `json:"contract,omitempty"`
	Check       string `json:"check,omitempty"`
	LineNumber  int    `json:"line_number,omitempty"`
	Fix         string `json:"fix,omitempty"`
}

// Structure sends raw scanner text to the service and returns structured
// finding candidates. Any contract violation (non-JSON reply, missing name,
// unknown severity) returns an error and zero findings.
func (c *Client) Structure(ctx context.Context, rawText, schemaHint string) ([]scanner.StructuredFinding, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf("%s\n\nScanner output:\n%s", schemaHint, rawText)

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling structuring service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("structuring service returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var mr messagesResponse
	if err := json.Unmarshal(respBody, &mr); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}

	var text string
	for _, block := range mr.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return c.parseFindings(text)
}

// parseFindings validates the service's reply against the output contract.
func (c *Client) parseFindings(text string) ([]scanner.StructuredFinding, error) {
	text = extractJSONArray(text)

	var raw []rawFinding
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("reply is not a JSON finding array: %w", err)
	}

	findings := make([]scanner.StructuredFinding, 0, len(raw))
	for i, rf := range raw {
		if strings.TrimSpace(rf.Name) == "" {
			return nil, fmt.Errorf("finding %d has no name", i)
		}
		sev, err := models.ParseSeverity(rf.Severity)
		if err != nil {
			return nil, fmt.Errorf("finding %d: %w", i, err)
		}

		findings = append(findings, scanner.StructuredFinding{
			Name:        rf.Name,
			Description: rf.Description,
			Severity:    sev,
			DetailKind:  models.DetailKindContract,
			Detail: models.ContractDetail{
				Contract:   rf.Contract,
				Check:      rf.Check,
				LineNumber: rf.LineNumber,
			},
			FixSuggestion: rf.Fix,
		})
	}

	c.logger.Debug("structured scanner output", "findings", len(findings))
	return findings, nil
}

// extractJSONArray tolerates replies wrapped in markdown fences or prose by
// slicing from the first '[' to the last ']'. Anything that still fails to
// parse is rejected by the caller.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
