package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/marker-engine/internal/models"
)

// YAMLSource loads marker definitions from a file or a directory of YAML files.
type YAMLSource struct {
	Path string
}

// Load implements Loader.
func (y YAMLSource) Load(context.Context) ([]*models.Marker, error) {
	return LoadYAML(y.Path)
}

// LoadYAML reads marker definitions from path. A directory is read non-recursively in name
// order, picking up *.yaml and *.yml files. Each document holds a `markers:` list, a bare
// list, or a single marker.
func LoadYAML(path string) ([]*models.Marker, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat marker path: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read marker directory: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	var markers []*models.Marker
	for _, file := range files {
		loaded, err := loadYAMLFile(file)
		if err != nil {
			return nil, err
		}
		markers = append(markers, loaded...)
	}
	return markers, nil
}

type markerDocument struct {
	Markers []*models.Marker `yaml:"markers"`
}

func loadYAMLFile(file string) ([]*models.Marker, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	var markers []*models.Marker
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}

		if len(node.Content) == 1 && node.Content[0].Kind == yaml.SequenceNode {
			var list []*models.Marker
			if err := node.Decode(&list); err != nil {
				return nil, fmt.Errorf("parse %s: %w", file, err)
			}
			markers = append(markers, list...)
			continue
		}

		var doc markerDocument
		if err := node.Decode(&doc); err == nil && len(doc.Markers) > 0 {
			markers = append(markers, doc.Markers...)
			continue
		}
		var single models.Marker
		if err := node.Decode(&single); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		if single.ID != "" {
			markers = append(markers, &single)
		}
	}
	return markers, nil
}
