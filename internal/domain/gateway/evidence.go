package gateway

import (
	"context"

	"github.com/google/uuid"
)

type EvidenceUpload struct {
	Filename   string
	URL        string
	Size       int64
	Content    []byte
	UploadedBy uuid.UUID
}

type InspectedEvidence struct {
	MIMEType    string
	Fingerprint string
	Verified    bool
}

// EvidenceInspector проверяет тип и размер файла доказательства.
type EvidenceInspector interface {
	Inspect(ctx context.Context, upload EvidenceUpload) (InspectedEvidence, error)
}
