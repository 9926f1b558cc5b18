package export

import (
	"encoding/json"
	"io"
)

// JSONExporter exports transcripts as indented JSON
type JSONExporter struct{}

func (e *JSONExporter) Export(t Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
