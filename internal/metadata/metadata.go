// Package metadata embeds the external domain metadata document describing
// the record types the extractor produces.
package metadata

import (
	_ "embed"
	"encoding/json"
)

//go:embed external_domain_metadata.json
var document []byte

// ExternalDomain returns a copy of the embedded metadata document.
func ExternalDomain() json.RawMessage {
	out := make(json.RawMessage, len(document))
	copy(out, document)
	return out
}
