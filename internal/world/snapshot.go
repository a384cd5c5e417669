package world

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// exportDoc is the on-wire shape of an exported snapshot.
type exportDoc struct {
	Snapshot   *Snapshot    `json:"snapshot"`
	Structures []*Structure `json:"structures"`
}

// ExportSnapshot writes a gzipped JSON dump of the full world to w.
// Intended for the admin snapshot endpoint and offline inspection.
func (s *Store) ExportSnapshot(w io.Writer) error {
	doc := exportDoc{
		Snapshot:   s.Snapshot(),
		Structures: s.Structures(),
	}

	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(doc); err != nil {
		gz.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}
