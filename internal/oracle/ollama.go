package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// OllamaConfig holds the Ollama oracle parameters.
type OllamaConfig struct {
	BaseURL string        // e.g. "http://localhost:11434"
	Model   string        // e.g. "llama3.1"
	Timeout time.Duration // per-approval deadline
}

// Ollama asks a locally hosted LLM for a second opinion on each entry and
// hedge. The model sees the market question, the intent, and the
// microstructure signal, and must answer APPROVE or REJECT. Anything else,
// an HTTP failure, or a blown deadline is treated as not approved.
type Ollama struct {
	cfg        OllamaConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates the Ollama-backed oracle.
func NewOllama(cfg OllamaConfig, logger *slog.Logger) *Ollama {
	return &Ollama{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout + 2*time.Second},
		logger:     logger.With(slog.String("component", "oracle_ollama")),
	}
}

var _ domain.Approver = (*Ollama)(nil)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Approve submits the approval prompt and parses the model's verdict.
func (o *Ollama) Approve(ctx context.Context, kind domain.IntentKind, actx domain.ApprovalContext) (domain.ApprovalVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	answer, err := o.generate(ctx, buildPrompt(kind, actx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			o.logger.Warn("approval timed out",
				slog.String("market_id", actx.Intent.MarketID),
				slog.Duration("timeout", o.cfg.Timeout),
			)
			return domain.VerdictTimeout, nil
		}
		return domain.VerdictRejected, fmt.Errorf("oracle: ollama generate: %w", err)
	}

	verdict := parseVerdict(answer)
	o.logger.Info("oracle verdict",
		slog.String("market_id", actx.Intent.MarketID),
		slog.String("kind", string(kind)),
		slog.String("verdict", string(verdict)),
	)
	return verdict, nil
}

func (o *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  o.cfg.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return gen.Response, nil
}

func buildPrompt(kind domain.IntentKind, actx domain.ApprovalContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a risk reviewer for a prediction market trading system.\n")
	fmt.Fprintf(&b, "Market: %s\n", actx.Market.Question)
	fmt.Fprintf(&b, "Proposed action: %s %s %s at $%.4f, %.2f shares\n",
		kind, actx.Intent.Side, actx.Intent.Outcome, actx.Intent.Price(), actx.Intent.Size())
	fmt.Fprintf(&b, "Estimated edge after slippage: $%.4f per share\n", actx.Mispricing)
	fmt.Fprintf(&b, "Realized volatility (1m): %.4f\n", actx.Signal.RealizedVol)
	fmt.Fprintf(&b, "Depth change (30s): %.2f shares/sec\n", actx.Signal.DepthAccel)
	fmt.Fprintf(&b, "Spread change (30s): $%.4f\n", actx.Signal.SpreadDrift)
	fmt.Fprintf(&b, "Answer with exactly one word: APPROVE or REJECT.\n")
	return b.String()
}

// parseVerdict finds the model's decision in its answer. Only an unambiguous
// APPROVE counts; everything else rejects.
func parseVerdict(answer string) domain.ApprovalVerdict {
	upper := strings.ToUpper(answer)
	if strings.Contains(upper, "APPROVE") && !strings.Contains(upper, "REJECT") {
		return domain.VerdictApproved
	}
	return domain.VerdictRejected
}
