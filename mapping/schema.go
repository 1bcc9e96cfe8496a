package mapping

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// SchemaDocument is the YAML form of a set of schema-defined entities.
//
//	entities:
//	  - name: person
//	    storage: people
//	    fields:
//	      - name: id
//	        id: true
//	      - name: name
//	        convert: upper
//	      - name: address
//	        fields:
//	          - name: city
type SchemaDocument struct {
	Entities []SchemaEntity `yaml:"entities"`
}

// SchemaEntity describes one entity in a schema document.
type SchemaEntity struct {
	Name    string        `yaml:"name"`
	Storage string        `yaml:"storage,omitempty"`
	Fields  []SchemaField `yaml:"fields"`
}

// SchemaField describes one field; Fields makes it a sub-record.
type SchemaField struct {
	Name       string        `yaml:"name"`
	Key        string        `yaml:"key,omitempty"`
	ID         bool          `yaml:"id,omitempty"`
	Collection bool          `yaml:"collection,omitempty"`
	Convert    string        `yaml:"convert,omitempty"`
	Fields     []SchemaField `yaml:"fields,omitempty"`
}

// LoadSchema decodes a YAML schema document into record-backed entities.
func LoadSchema(r io.Reader, opts ...Option) ([]*Entity, error) {
	var doc SchemaDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	o := newOptions(opts)

	entities := make([]*Entity, 0, len(doc.Entities))
	for _, se := range doc.Entities {
		e, err := schemaEntity(se, o.converters)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func schemaEntity(se SchemaEntity, converters map[string]Converter) (*Entity, error) {
	if se.Name == "" {
		return nil, fmt.Errorf("%w: entity without a name", ErrInvalidSchema)
	}
	fields, err := schemaFields(se.Fields, "", "", converters)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", se.Name, err)
	}
	e := &Entity{
		name:    se.Name,
		storage: se.Storage,
		typ:     recordType,
		fields:  fields,
	}
	if e.storage == "" {
		e.storage = e.name
	}
	e.index()
	if e.id == nil {
		if f, ok := e.byName["id"]; ok {
			f.ID = true
			e.id = f
		}
	}
	return e, nil
}

func schemaFields(in []SchemaField, namePrefix, keyPrefix string, converters map[string]Converter) ([]*Field, error) {
	out := make([]*Field, 0, len(in))
	for _, sf := range in {
		if sf.Name == "" {
			return nil, fmt.Errorf("%w: field without a name", ErrInvalidSchema)
		}
		key := sf.Key
		if key == "" {
			key = sf.Name
		}
		f := &Field{
			Name:    joinName(namePrefix, sf.Name),
			Key:     joinKey(keyPrefix, key),
			ID:      sf.ID,
			local:   sf.Name,
			segment: key,
		}
		if sf.Convert != "" {
			c, ok := converters[sf.Convert]
			if !ok {
				return nil, fmt.Errorf("%w: %q on field %s", ErrUnknownConverter, sf.Convert, sf.Name)
			}
			f.converter = c
		}
		switch {
		case len(sf.Fields) > 0:
			f.Kind = FieldRecord
			children, err := schemaFields(sf.Fields, f.Name, f.Key, converters)
			if err != nil {
				return nil, err
			}
			f.children = children
		case sf.Collection:
			f.Kind = FieldCollection
		}
		out = append(out, f)
	}
	return out, nil
}
