// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:generate go run -tags=tools golang.org/x/tools/cmd/stringer -output=string.go -type=FieldType -linecomment

// Package dataform is an editable model of XEP-0004: Data Forms used for room
// configuration.
//
// Each field that can be edited gets a short tag ("field1", "field2", …) that
// is used to refer to it from the command line.
package dataform // import "mellium.im/communique/internal/dataform"

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"

	"mellium.im/xmlstream"
)

// NS is the data forms namespace.
const NS = "jabber:x:data"

// FieldType is the type of a form field.
type FieldType uint8

// A list of field types.
const (
	TextSingle  FieldType = iota // text-single
	TextPrivate                  // text-private
	TextMulti                    // text-multi
	Boolean                      // boolean
	ListSingle                   // list-single
	ListMulti                    // list-multi
	JIDSingle                    // jid-single
	JIDMulti                     // jid-multi
	Fixed                        // fixed
	Hidden                       // hidden
)

// ParseFieldType converts the type attribute of a field.
// A missing type is TextSingle.
func ParseFieldType(s string) (FieldType, error) {
	if s == "" {
		return TextSingle, nil
	}
	for t := TextSingle; t <= Hidden; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return TextSingle, errors.New("dataform: unknown field type " + s)
}

// Errors returned when editing a form.
var (
	// ErrInvalidEdit is returned when the arguments to an edit do not fit the
	// field's type.
	// The caller should show the field's help.
	ErrInvalidEdit = errors.New("dataform: invalid edit")
)

// NoFieldError is returned when a tag does not name a field.
type NoFieldError struct {
	Tag string
}

func (e NoFieldError) Error() string {
	return "Form does not contain a field with tag " + e.Tag
}

// EditError is a well formed edit that could not be applied, such as
// removing a value that is not set.
type EditError string

func (e EditError) Error() string {
	return string(e)
}

// Option is a choice of a list field.
type Option struct {
	Label string `xml:"label,attr,omitempty"`
	Value string `xml:"value"`
}

// Field is a form field.
type Field struct {
	Type        FieldType
	Var         string
	Label       string
	Description string
	Required    bool
	Values      []string
	Options     []Option

	// Tag is the short name used to edit the field, or empty if the field
	// cannot be edited.
	Tag string
}

// HasOption reports whether value is one of the field's options.
func (f *Field) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Bool returns the value of a boolean field.
func (f *Field) Bool() bool {
	if len(f.Values) == 0 {
		return false
	}
	switch f.Values[0] {
	case "1", "true":
		return true
	}
	return false
}

// Form is a data form.
type Form struct {
	Type         string
	Title        string
	Instructions []string
	Fields       []*Field

	modified bool
	tags     map[string]*Field
}

// Modified reports whether any field has been edited since the form was
// received.
func (f *Form) Modified() bool {
	return f.modified
}

// Tags returns the tags of every editable field in order.
func (f *Form) Tags() []string {
	var tags []string
	for _, field := range f.Fields {
		if field.Tag != "" {
			tags = append(tags, field.Tag)
		}
	}
	return tags
}

// Field returns the field with the given tag.
func (f *Form) Field(tag string) (*Field, bool) {
	field, ok := f.tags[tag]
	return field, ok
}

// Lookup returns the field with the given var.
func (f *Form) Lookup(v string) (*Field, bool) {
	for _, field := range f.Fields {
		if field.Var == v {
			return field, true
		}
	}
	return nil, false
}

func (f *Form) field(tag string) (*Field, error) {
	field, ok := f.tags[tag]
	if !ok {
		return nil, NoFieldError{Tag: tag}
	}
	return field, nil
}

// SetValue replaces the values of a field with value.
func (f *Form) SetValue(tag, value string) error {
	field, err := f.field(tag)
	if err != nil {
		return err
	}
	field.Values = []string{value}
	f.modified = true
	return nil
}

// AddValue appends value to a multi-valued field.
func (f *Form) AddValue(tag, value string) error {
	field, err := f.field(tag)
	if err != nil {
		return err
	}
	field.Values = append(field.Values, value)
	f.modified = true
	return nil
}

// AddUniqueValue appends value unless the field already has it.
func (f *Form) AddUniqueValue(tag, value string) (bool, error) {
	field, err := f.field(tag)
	if err != nil {
		return false, err
	}
	for _, v := range field.Values {
		if v == value {
			return false, nil
		}
	}
	field.Values = append(field.Values, value)
	f.modified = true
	return true, nil
}

// RemoveValue removes value from a field.
// The value may also be given by position as "valN", counting from 1, in
// which case the values after it move down by one.
func (f *Form) RemoveValue(tag, value string) (bool, error) {
	field, err := f.field(tag)
	if err != nil {
		return false, err
	}
	if idx, ok := valIndex(value); ok {
		return f.removeIndex(field, idx), nil
	}
	for i, v := range field.Values {
		if v == value {
			field.Values = append(field.Values[:i], field.Values[i+1:]...)
			f.modified = true
			return true, nil
		}
	}
	return false, nil
}

// RemoveIndex removes the value at position idx, counting from 1.
func (f *Form) RemoveIndex(tag string, idx int) (bool, error) {
	field, err := f.field(tag)
	if err != nil {
		return false, err
	}
	return f.removeIndex(field, idx), nil
}

func (f *Form) removeIndex(field *Field, idx int) bool {
	if idx < 1 || idx > len(field.Values) {
		return false
	}
	field.Values = append(field.Values[:idx-1], field.Values[idx:]...)
	f.modified = true
	return true
}

func valIndex(s string) (int, bool) {
	if !strings.HasPrefix(s, "val") || len(s) < 4 {
		return 0, false
	}
	idx, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Apply performs a command line edit of the field with the given tag.
// Args depend on the field type: "on" or "off" for booleans, a value for
// single valued fields, and "add" or "remove" followed by a value for multi
// valued fields.
// Values of text-multi fields are removed by position with "valN".
func (f *Form) Apply(tag string, args []string) error {
	field, err := f.field(tag)
	if err != nil {
		return err
	}
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch field.Type {
	case Boolean:
		switch arg(0) {
		case "on":
			return f.SetValue(tag, "1")
		case "off":
			return f.SetValue(tag, "0")
		}
		return ErrInvalidEdit
	case TextSingle, TextPrivate, JIDSingle:
		if len(args) == 0 {
			return ErrInvalidEdit
		}
		return f.SetValue(tag, strings.Join(args, " "))
	case ListSingle:
		if !field.HasOption(arg(0)) {
			return ErrInvalidEdit
		}
		return f.SetValue(tag, arg(0))
	case TextMulti, ListMulti, JIDMulti:
	default:
		return ErrInvalidEdit
	}

	cmd, value := arg(0), arg(1)
	if (cmd != "add" && cmd != "remove") || value == "" {
		return ErrInvalidEdit
	}
	switch field.Type {
	case TextMulti:
		if cmd == "add" {
			return f.AddValue(tag, strings.Join(args[1:], " "))
		}
		idx, ok := valIndex(value)
		if !ok || idx < 1 || idx > len(field.Values) {
			return ErrInvalidEdit
		}
		if !f.removeIndex(field, idx) {
			return EditError("Could not remove " + value + " from " + tag)
		}
	case ListMulti:
		if !field.HasOption(value) {
			return ErrInvalidEdit
		}
		if cmd == "add" {
			if added, _ := f.AddUniqueValue(tag, value); !added {
				return EditError("Value " + value + " already selected for " + tag)
			}
			return nil
		}
		if removed, _ := f.RemoveValue(tag, value); !removed {
			return EditError("Value " + value + " is not currently set for " + tag)
		}
	case JIDMulti:
		if cmd == "add" {
			if added, _ := f.AddUniqueValue(tag, value); !added {
				return EditError("JID " + value + " already exists in " + tag)
			}
			return nil
		}
		if removed, _ := f.RemoveValue(tag, value); !removed {
			return EditError("Field " + tag + " does not contain " + value)
		}
	}
	return nil
}

// Usage returns a short description of how the field with tag is edited.
func (f *Form) Usage(tag string) string {
	field, ok := f.tags[tag]
	if !ok {
		return ""
	}
	switch field.Type {
	case Boolean:
		return "/" + tag + " on|off"
	case TextSingle, TextPrivate, JIDSingle:
		return "/" + tag + " <value>"
	case ListSingle:
		return "/" + tag + " <option>"
	case TextMulti:
		return "/" + tag + " add <value>, /" + tag + " remove val<n>"
	case ListMulti:
		return "/" + tag + " add <option>, /" + tag + " remove <option>"
	case JIDMulti:
		return "/" + tag + " add <jid>, /" + tag + " remove <jid>"
	}
	return ""
}

type xmlField struct {
	Var      string    `xml:"var,attr"`
	Label    string    `xml:"label,attr"`
	Type     string    `xml:"type,attr"`
	Desc     string    `xml:"desc"`
	Required *struct{} `xml:"required"`
	Values   []string  `xml:"value"`
	Options  []Option  `xml:"option"`
}

type xmlForm struct {
	XMLName      xml.Name   `xml:"jabber:x:data x"`
	Type         string     `xml:"type,attr"`
	Title        string     `xml:"title"`
	Instructions []string   `xml:"instructions"`
	Fields       []xmlField `xml:"field"`
}

// UnmarshalXML satisfies the xml.Unmarshaler interface for *Form.
// Editable fields are tagged in document order.
func (f *Form) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw xmlForm
	err := d.DecodeElement(&raw, &start)
	if err != nil {
		return err
	}
	*f = Form{
		Type:         raw.Type,
		Title:        raw.Title,
		Instructions: raw.Instructions,
		tags:         make(map[string]*Field),
	}
	var n int
	for _, rf := range raw.Fields {
		typ, err := ParseFieldType(rf.Type)
		if err != nil {
			return err
		}
		field := &Field{
			Type:        typ,
			Var:         rf.Var,
			Label:       rf.Label,
			Description: rf.Desc,
			Required:    rf.Required != nil,
			Values:      rf.Values,
			Options:     rf.Options,
		}
		if typ != Fixed && typ != Hidden && field.Var != "" {
			n++
			field.Tag = "field" + strconv.Itoa(n)
			f.tags[field.Tag] = field
		}
		f.Fields = append(f.Fields, field)
	}
	return nil
}

// Parse decodes a form from r, which must start with the form element.
func Parse(r xml.TokenReader) (*Form, error) {
	d := xml.NewTokenDecoder(r)
	f := &Form{}
	err := d.Decode(f)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func wrapText(local, s string) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(s)),
		xml.StartElement{Name: xml.Name{Local: local}},
	)
}

// Submit returns the form as a submission containing every field with a
// var.
func (f *Form) Submit() xml.TokenReader {
	var children []xml.TokenReader
	for _, field := range f.Fields {
		if field.Var == "" || field.Type == Fixed {
			continue
		}
		values := make([]xml.TokenReader, 0, len(field.Values))
		for _, v := range field.Values {
			values = append(values, wrapText("value", v))
		}
		children = append(children, xmlstream.Wrap(
			xmlstream.MultiReader(values...),
			xml.StartElement{
				Name: xml.Name{Local: "field"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "var"}, Value: field.Var}},
			},
		))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(children...),
		xml.StartElement{
			Name: xml.Name{Space: NS, Local: "x"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: "submit"}},
		},
	)
}

// Cancel returns an empty form of type cancel.
func Cancel() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: NS, Local: "x"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: "cancel"}},
	})
}
