package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Archiver uploads cold-storage snapshots of the event log to an
// Azure blob container, grounded on the teacher's
// internal/storage/azure.go AzureStorage. Unlike AzureStorage — which was
// the teacher's primary persistence tier — this is strictly a secondary
// export: the live Store (filesystem/postgres/sqlite) remains the source
// of truth, and Archiver just snapshots it for long-term retention.
type Archiver struct {
	client    *azblob.Client
	container string
}

// NewArchiver builds an Archiver from a full connection string (the
// simplest of the teacher's two supported auth modes).
func NewArchiver(connectionString, container string) (*Archiver, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("eventlog: azure client: %w", err)
	}
	return &Archiver{client: client, container: container}, nil
}

// ArchiveSnapshot uploads the given events as one newline-delimited JSON
// blob named by the current UTC timestamp.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, nodeID int, events []Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("eventlog: encode archive event: %w", err)
		}
	}

	blobName := fmt.Sprintf("node-%d/%s.jsonl", nodeID, time.Now().UTC().Format("20060102T150405Z"))
	_, err := a.client.UploadBuffer(ctx, a.container, blobName, buf.Bytes(), nil)
	if err != nil {
		return fmt.Errorf("eventlog: upload archive blob: %w", err)
	}
	return nil
}
