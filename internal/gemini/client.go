package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/gestaozabele/laudoia/internal/analysis"
)

const (
	pollInterval = 500 * time.Millisecond
	maxPolls     = 20
)

// Config descreve credenciais e parâmetros fixos do modelo.
type Config struct {
	APIKey   string
	Settings analysis.Settings
	// Options extras repassadas ao SDK (endpoint, http client).
	Options []option.ClientOption
}

// Client implementa analysis.Provider sobre a API do Gemini.
type Client struct {
	client       *genai.Client
	settings     analysis.Settings
	pollInterval time.Duration
	maxPolls     int
}

var _ analysis.Provider = (*Client)(nil)

// New cria o cliente do SDK; a chave é lida uma única vez na inicialização.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key obrigatória")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.Options...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	return &Client{
		client:       client,
		settings:     cfg.Settings,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}, nil
}

// Close libera conexões do SDK.
func (c *Client) Close() error {
	return c.client.Close()
}

// Upload envia o arquivo pela File API e aguarda o processamento remoto.
func (c *Client) Upload(ctx context.Context, path, mimeType string) (analysis.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return analysis.Asset{}, err
	}
	defer f.Close()

	file, err := c.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: "laudo-" + uuid.NewString(),
		MIMEType:    mimeType,
	})
	if err != nil {
		return analysis.Asset{}, err
	}

	file, err = c.waitActive(ctx, file)
	if err != nil {
		return analysis.Asset{}, err
	}

	return analysis.Asset{Name: file.Name, URI: file.URI, MIMEType: file.MIMEType}, nil
}

func (c *Client) waitActive(ctx context.Context, file *genai.File) (*genai.File, error) {
	for i := 0; file.State == genai.FileStateProcessing && i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		next, err := c.client.GetFile(ctx, file.Name)
		if err != nil {
			return nil, err
		}
		file = next
	}
	switch file.State {
	case genai.FileStateFailed:
		return nil, fmt.Errorf("gemini: processamento do arquivo %s falhou", file.Name)
	case genai.FileStateProcessing:
		return nil, fmt.Errorf("gemini: arquivo %s ainda em processamento", file.Name)
	}
	return file, nil
}

// Generate inicia uma conversa com o asset no histórico e envia uma única mensagem.
func (c *Client) Generate(ctx context.Context, asset analysis.Asset) (string, error) {
	model := c.client.GenerativeModel(c.settings.Model)
	configureModel(model, c.settings)

	session := model.StartChat()
	session.History = historyFor(asset)

	resp, err := session.SendMessage(ctx, genai.FileData{MIMEType: asset.MIMEType, URI: asset.URI})
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func configureModel(model *genai.GenerativeModel, s analysis.Settings) {
	model.SetTemperature(s.Generation.Temperature)
	model.SetTopP(s.Generation.TopP)
	model.SetTopK(s.Generation.TopK)
	model.SetMaxOutputTokens(s.Generation.MaxOutputTokens)
	model.ResponseMIMEType = s.Generation.ResponseMIMEType
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(s.SystemInstruction)}}
}

// historyFor monta o turno de usuário que apresenta o asset ao modelo.
func historyFor(asset analysis.Asset) []*genai.Content {
	return []*genai.Content{
		{Role: "user", Parts: []genai.Part{genai.Text(asset.URI)}},
	}
}

// responseText junta as partes de texto do primeiro candidato sem reformatar.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", fmt.Errorf("gemini: prompt bloqueado (%s)", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("gemini: resposta sem candidatos")
	}

	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("gemini: candidato sem conteúdo (%s)", cand.FinishReason)
	}

	var b strings.Builder
	found := false
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
			found = true
		}
	}
	if !found {
		return "", errors.New("gemini: resposta sem texto")
	}
	return b.String(), nil
}
