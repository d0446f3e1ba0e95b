package evidence

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/crypto/blake2b"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Разрешённые расширения и MIME тип по умолчанию для них
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".mp4":  "video/mp4",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
}

// текстовые форматы не имеют магических байтов, их содержимое не сверяется
var textExtensions = map[string]bool{".txt": true, ".csv": true, ".md": true}

// Inspector проверяет файлы доказательств: расширение, размер и реальный тип по магическим байтам.
type Inspector struct {
	maxSize int64
}

func NewInspector(maxSizeMB int) *Inspector {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &Inspector{maxSize: int64(maxSizeMB) << 20}
}

func (i *Inspector) Inspect(_ context.Context, up gateway.EvidenceUpload) (gateway.InspectedEvidence, error) {
	ext := strings.ToLower(filepath.Ext(up.Filename))
	mime, ok := allowedExtensions[ext]
	if !ok {
		return gateway.InspectedEvidence{}, apperror.Validation(fmt.Sprintf("неподдерживаемый формат файла %q", up.Filename))
	}

	size := up.Size
	if len(up.Content) > 0 {
		size = int64(len(up.Content))
	}
	if size > i.maxSize {
		return gateway.InspectedEvidence{}, apperror.Validation(fmt.Sprintf("файл %q больше %d МБ", up.Filename, i.maxSize>>20))
	}

	// только ссылка: тип по расширению, файл не проверен
	if len(up.Content) == 0 {
		if strings.TrimSpace(up.URL) == "" {
			return gateway.InspectedEvidence{}, apperror.Validation("у доказательства нет ни файла, ни ссылки")
		}
		return gateway.InspectedEvidence{MIMEType: mime}, nil
	}

	sum := blake2b.Sum256(up.Content)
	fingerprint := hex.EncodeToString(sum[:])

	if textExtensions[ext] {
		return gateway.InspectedEvidence{MIMEType: mime, Fingerprint: fingerprint, Verified: true}, nil
	}

	// Проверяем магические байты (реальный тип файла)
	kind, err := filetype.Match(up.Content)
	if err != nil || kind == filetype.Unknown {
		return gateway.InspectedEvidence{}, apperror.Validation(fmt.Sprintf("не удалось определить тип файла %q", up.Filename))
	}

	// .jpg и .jpeg - это одно и то же
	if allowedExtensions["."+kind.Extension] != mime {
		return gateway.InspectedEvidence{}, apperror.Validation(
			fmt.Sprintf("расширение файла (%s) не соответствует реальному типу (%s)", ext, kind.MIME.Value))
	}

	return gateway.InspectedEvidence{MIMEType: kind.MIME.Value, Fingerprint: fingerprint, Verified: true}, nil
}
