package analysis

import "errors"

var (
	// ErrTempStorage indica falha ao gravar a imagem no armazenamento temporário.
	ErrTempStorage = errors.New("armazenamento temporário indisponível")
	// ErrUpstream indica falha no upload ou na geração junto ao provedor de IA.
	ErrUpstream = errors.New("falha no provedor de IA")
)
