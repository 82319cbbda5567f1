package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

const verifyPrompt = "Answer only by yes or no: do you see any firefly flashes in this image? (watch very carefully)"

// Verifier gives a second opinion on a frame the detector judged valid.
type Verifier interface {
	Verify(ctx context.Context, imagePath string) (bool, error)
}

// AgentOptions selects the Ollama endpoint and model
type AgentOptions struct {
	BaseURL string
	Port    int
	Model   string
}

// DefaultAgentOptions points at a local Ollama with the llama vision model
func DefaultAgentOptions() AgentOptions {
	return AgentOptions{
		BaseURL: "http://localhost",
		Port:    11434,
		Model:   "llama3.2-vision:11b",
	}
}

// NewAgent initializes and returns a new vision agent
func NewAgent(ctx context.Context, logger *slog.Logger, opts AgentOptions) (*agent.DefaultAgent, error) {
	// Check if Ollama is running
	if err := checkOllama(ctx, fmt.Sprintf("%s:%d/api/tags", opts.BaseURL, opts.Port)); err != nil {
		return nil, err
	}

	// Set up Ollama provider
	providerOpts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: opts.BaseURL,
		Port:    opts.Port,
	}
	provider := ollama.NewProvider(providerOpts)

	model := &types.Model{
		ID: opts.Model,
	}
	provider.UseModel(ctx, model)

	// Create agent configuration
	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: "You are a visual analysis assistant looking at night-time camera trap photos of fields. Firefly flashes appear as small bright green-yellow dots. Reply with a single word.",
	}

	// Initialize agent
	return agent.NewAgent(agentConf), nil
}

func checkOllama(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %s for %s", resp.Status, url)
	}
	return nil
}

// AgentVerifier asks a vision model whether it sees a flash
type AgentVerifier struct {
	agent  *agent.DefaultAgent
	logger *slog.Logger
}

// NewAgentVerifier wraps an initialized agent
func NewAgentVerifier(a *agent.DefaultAgent, logger *slog.Logger) *AgentVerifier {
	return &AgentVerifier{agent: a, logger: logger}
}

// Verify sends the image to the model and parses the yes/no answer
func (v *AgentVerifier) Verify(ctx context.Context, imagePath string) (bool, error) {
	response := v.agent.Run(
		ctx,
		agent.WithInput(verifyPrompt),
		agent.WithImagePath(imagePath),
	)
	if response.Err != nil {
		return false, response.Err
	}

	if len(response.Messages) == 0 {
		return false, fmt.Errorf("no response messages received from model")
	}

	// Get the model's response (not the prompt)
	content := response.Messages[len(response.Messages)-1].Content
	v.logger.Debug("Model answer", "image", imagePath, "content", content)

	return ParseAnswer(content), nil
}

// ParseAnswer reads a yes/no model reply. Anything that does not start with
// "yes" counts as no.
func ParseAnswer(content string) bool {
	answer := strings.ToLower(strings.TrimSpace(content))
	answer = strings.TrimLeft(answer, "\"'*` ")
	return strings.HasPrefix(answer, "yes")
}
