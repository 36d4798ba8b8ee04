package analysis

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gestaozabele/laudoia/internal/storage"
)

const fallbackMIMEType = "image/jpeg"

// Report é o texto devolvido pelo provedor, repassado sem alterações.
type Report struct {
	DiagnosticReport string `json:"diagnostic_report"`
}

// Asset referencia um arquivo já enviado ao provedor.
type Asset struct {
	Name     string
	URI      string
	MIMEType string
}

// Provider abstrai o serviço de IA generativa.
type Provider interface {
	// Upload envia o arquivo local e devolve a referência remota.
	Upload(ctx context.Context, path, mimeType string) (Asset, error)
	// Generate abre uma conversa de turno único sobre o asset e aguarda o texto completo.
	Generate(ctx context.Context, asset Asset) (string, error)
}

// Relay recebe a imagem, grava em disco, consulta o provedor e devolve o laudo.
type Relay struct {
	provider Provider
	store    *storage.TempStore
	timeout  time.Duration
	logger   zerolog.Logger
}

// Options agrupa dependências opcionais do relay.
type Options struct {
	// UpstreamTimeout limita upload+geração; zero mantém sem prazo.
	UpstreamTimeout time.Duration
	Logger          zerolog.Logger
}

// NewRelay exige provedor e armazenamento temporário.
func NewRelay(provider Provider, store *storage.TempStore, opts Options) (*Relay, error) {
	if provider == nil {
		return nil, errors.New("analysis: provedor obrigatório")
	}
	if store == nil {
		return nil, errors.New("analysis: armazenamento temporário obrigatório")
	}
	if opts.UpstreamTimeout < 0 {
		return nil, errors.New("analysis: timeout do provedor não pode ser negativo")
	}
	return &Relay{
		provider: provider,
		store:    store,
		timeout:  opts.UpstreamTimeout,
		logger:   opts.Logger,
	}, nil
}

// Analyze executa o fluxo completo para uma imagem. O arquivo temporário é
// removido em todos os caminhos de saída, inclusive quando o provedor falha.
func (r *Relay) Analyze(ctx context.Context, image []byte, contentType string) (Report, error) {
	start := time.Now()
	mimeType := ResolveMIMEType(contentType, image)

	tmp, err := r.store.Write(image, storage.ExtensionFor(mimeType))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrTempStorage, err)
	}
	defer func() {
		if err := tmp.Remove(); err != nil {
			r.logger.Error().Err(err).Str("path", tmp.Path).Msg("falha ao remover arquivo temporário")
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	asset, err := r.provider.Upload(ctx, tmp.Path, mimeType)
	if err != nil {
		return Report{}, fmt.Errorf("%w: upload: %w", ErrUpstream, err)
	}

	text, err := r.provider.Generate(ctx, asset)
	if err != nil {
		return Report{}, fmt.Errorf("%w: geração: %w", ErrUpstream, err)
	}

	r.logger.Info().
		Str("asset", asset.Name).
		Str("mime_type", mimeType).
		Int64("bytes", tmp.Size).
		Int("report_bytes", len(text)).
		Dur("duration", time.Since(start)).
		Msg("laudo gerado")

	return Report{DiagnosticReport: text}, nil
}

// ResolveMIMEType usa o tipo declarado, depois o detectado e por fim image/jpeg.
func ResolveMIMEType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil && mediaType != "application/octet-stream" {
		return mediaType
	}
	if len(data) > 0 {
		detected, _, _ := mime.ParseMediaType(http.DetectContentType(data))
		if strings.HasPrefix(detected, "image/") {
			return detected
		}
	}
	return fallbackMIMEType
}
