package asset

import "time"

// Asset is the metadata record for an uploaded binary file. The bytes live
// behind an assetstorage.Strategy; Source and Preview are strategy
// identifiers.
type Asset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum,omitempty"`
	Source    string    `json:"source"`
	Preview   string    `json:"preview,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
