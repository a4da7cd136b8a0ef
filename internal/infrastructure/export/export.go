// Package export renders inventory snapshots in interchange formats.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	domain "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/filestore"
	"gopkg.in/yaml.v3"
)

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Formats lists the accepted format names.
func Formats() []string { return []string{FormatYAML, FormatJSON} }

// Write encodes snap to w. Item order is preserved in both formats.
func Write(w io.Writer, format string, snap domain.Snapshot) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatYAML, "yml":
		return writeYAML(w, snap)
	case FormatJSON:
		data, err := filestore.EncodeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("export: json: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedFormat, format, strings.Join(Formats(), ", "))
	}
}

func writeYAML(w io.Writer, snap domain.Snapshot) error {
	// A mapping node keeps keys in snapshot order; a Go map would sort them.
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range snap {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Item},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(e.Quantity)},
		)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{m}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: yaml: %w", err)
	}
	return enc.Close()
}
