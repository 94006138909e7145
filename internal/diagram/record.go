package diagram

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultXML is the layout document of a newly added diagram: an empty
// draw.io model with the two root cells.
const DefaultXML = `<mxGraphModel dx="0" dy="0" grid="1" gridSize="10" guides="1" tooltips="1" connect="1" arrows="1" fold="1" page="1" pageScale="1" pageWidth="827" pageHeight="1169"><root><mxCell id="0"/><mxCell id="1" parent="0"/></root></mxGraphModel>`

// Record is the persisted shape of one diagram and the shape accepted by
// import.
type Record struct {
	Name    string  `yaml:"name" json:"name"`
	XML     string  `yaml:"xml" json:"xml"`
	Options Options `yaml:"options" json:"options"`
}

// DefaultRecord returns the record of a new diagram called name.
func DefaultRecord(name string) Record {
	return Record{
		Name:    name,
		XML:     DefaultXML,
		Options: DefaultOptions(),
	}
}

// UnmarshalYAML decodes a record on top of the defaults, so a document
// only needs to carry what differs.
func (r *Record) UnmarshalYAML(value *yaml.Node) error {
	type plain Record
	out := plain(DefaultRecord(""))
	if err := value.Decode(&out); err != nil {
		return err
	}
	*r = Record(out)
	return nil
}

type recordsFile struct {
	Diagrams []Record `yaml:"diagrams"`
}

// ParseRecords decodes a records document:
//
//	diagrams:
//	  - name: Main
//	    xml: <mxGraphModel>...</mxGraphModel>
//	    options:
//	      zoom: 150%
func ParseRecords(data []byte) ([]Record, error) {
	var f recordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode records")
	}
	return f.Diagrams, nil
}

// LoadRecords reads and parses a records file.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read records %s", path)
	}
	recs, err := ParseRecords(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return recs, nil
}
