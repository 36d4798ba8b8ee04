package storage

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"strings"

	"github.com/google/uuid"
)

// TempStore grava arquivos efêmeros usados durante uma única requisição.
type TempStore struct {
	dir string
}

// TempFile representa um arquivo temporário escrito uma única vez.
type TempFile struct {
	Path string
	Size int64
}

// NewTempStore prepara o diretório base; vazio usa o diretório temporário do sistema.
func NewTempStore(dir string) (*TempStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: não foi possível criar %s: %w", dir, err)
	}
	return &TempStore{dir: dir}, nil
}

// Dir devolve o diretório base.
func (s *TempStore) Dir() string {
	return s.dir
}

// Write cria um arquivo exclusivo com o conteúdo informado.
// Em caso de falha nenhum arquivo parcial permanece no disco.
func (s *TempStore) Write(data []byte, ext string) (*TempFile, error) {
	f, err := os.CreateTemp(s.dir, "laudo-"+uuid.NewString()+"-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("storage: criar arquivo temporário: %w", err)
	}
	path := f.Name()

	n, err := f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("storage: gravar arquivo temporário: %w", err)
	}

	return &TempFile{Path: path, Size: int64(n)}, nil
}

// Remove apaga o arquivo; arquivo já ausente não é erro.
func (f *TempFile) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ExtensionFor escolhe o sufixo do arquivo temporário a partir do MIME.
func ExtensionFor(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ".jpg"
	}
	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}
