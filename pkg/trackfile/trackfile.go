// Package trackfile reads and writes track definitions in yaml format.
//
//	id: 1
//	name: oval
//	sectors:
//	  - {min: 0, max: 20, kind: straight}
//	  - {min: 18, max: 30, capacity: 2, kind: curve}
//	  - {min: 28, max: 40, kind: straight}
//
// A sector without capacity has unlimited capacity.
package trackfile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/boostrace/pkg/model"
)

type trackFile struct {
	ID      int            `yaml:"id"`
	Name    string         `yaml:"name"`
	Sectors []model.Sector `yaml:"sectors"`
}

func Load(path string) (*model.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a track. Unknown keys are rejected.
func Parse(data []byte) (*model.Track, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var tf trackFile
	if err := dec.Decode(&tf); err != nil {
		return nil, err
	}
	return model.NewTrack(tf.ID, tf.Name, tf.Sectors)
}

func Marshal(t *model.Track) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(trackFile{ID: t.ID, Name: t.Name, Sectors: t.Sectors}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
