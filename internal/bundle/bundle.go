// Package bundle reads and writes scene bundles: the persisted JSON shape of
// one map. The shape is an external contract, so records carry their data
// verbatim and only the header is interpreted here.
package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"glade-runner/server/internal/state"
)

// Version is written into every bundle this package produces.
const Version = 1

var (
	// ErrNotFound reports that no bundle exists for a map.
	ErrNotFound = errors.New("bundle: map not found")
	// ErrInvalid reports a document that does not have the bundle shape.
	ErrInvalid = errors.New("bundle: invalid document")
	// ErrInvalidMapID rejects map ids that cannot name a file.
	ErrInvalidMapID = errors.New("bundle: invalid map id")
)

// Header describes the map a bundle belongs to.
type Header struct {
	Version    int               `json:"version" jsonschema:"title=Version,description=Bundle format version.,minimum=1,required"`
	Config     state.SceneConfig `json:"config" jsonschema:"title=Scene Config,required"`
	ExportTime string            `json:"exportTime" jsonschema:"title=Export Time,description=RFC 3339 timestamp of the export."`
}

// EntityRecord is one serialized entity. Data is owned by the factory named
// by Type.
type EntityRecord struct {
	Type string          `json:"type" jsonschema:"title=Entity Type,description=Factory key used to rebuild the entity.,minLength=1,required"`
	Data json.RawMessage `json:"data" jsonschema:"title=Entity Data,description=Factory-specific payload.,type=object"`
}

// Bundle is a complete map snapshot.
type Bundle struct {
	Header   Header         `json:"header" jsonschema:"required"`
	Entities []EntityRecord `json:"entities" jsonschema:"required"`
}

// New stamps a bundle for config with the current time.
func New(config state.SceneConfig, records []EntityRecord, now time.Time) *Bundle {
	if records == nil {
		records = []EntityRecord{}
	}
	return &Bundle{
		Header: Header{
			Version:    Version,
			Config:     config,
			ExportTime: now.UTC().Format(time.RFC3339Nano),
		},
		Entities: records,
	}
}

// MapID returns the id stored in the header.
func (b *Bundle) MapID() string {
	if b == nil {
		return ""
	}
	return b.Header.Config.MapID
}

// Validate checks the fields the simulation depends on.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", ErrInvalid)
	}
	if strings.TrimSpace(b.Header.Config.MapID) == "" {
		return fmt.Errorf("%w: header config missing id", ErrInvalid)
	}
	for i, record := range b.Entities {
		if strings.TrimSpace(record.Type) == "" {
			return fmt.Errorf("%w: entity %d missing type", ErrInvalid, i)
		}
	}
	return nil
}

// Decode parses and validates a bundle.
func Decode(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Unmarshal is Decode over a byte slice.
func Unmarshal(data []byte) (*Bundle, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes b as indented JSON followed by a newline.
func Encode(w io.Writer, b *Bundle) error {
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Marshal renders b the way Encode writes it.
func Marshal(b *Bundle) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal %s: %w", b.MapID(), err)
	}
	return append(data, '\n'), nil
}

// Clone deep-copies b so stores never share record buffers with callers.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	clone := &Bundle{Header: b.Header, Entities: make([]EntityRecord, len(b.Entities))}
	for i, record := range b.Entities {
		clone.Entities[i] = EntityRecord{Type: record.Type}
		if record.Data != nil {
			clone.Entities[i].Data = append(json.RawMessage(nil), record.Data...)
		}
	}
	return clone
}

// TextureIDs returns every "texture" string found anywhere inside the entity
// records, sorted and without duplicates. Records that fail to parse are
// skipped.
func (b *Bundle) TextureIDs() []string {
	if b == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, record := range b.Entities {
		if len(record.Data) == 0 {
			continue
		}
		var value any
		if err := json.Unmarshal(record.Data, &value); err != nil {
			continue
		}
		collectTextures(value, seen)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func collectTextures(value any, seen map[string]struct{}) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			if key == "texture" {
				if id, ok := child.(string); ok && id != "" {
					seen[id] = struct{}{}
					continue
				}
			}
			collectTextures(child, seen)
		}
	case []any:
		for _, child := range v {
			collectTextures(child, seen)
		}
	}
}
