package engine

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/roach88/stead/internal/ir"
)

// SerializeOptions controls snapshot output.
type SerializeOptions struct {
	// Canonical sorts objects by (class, key), fields by name, relations by
	// name and tuples by (left, right), and omits the transaction id. Two
	// transactions holding the same state serialize to identical bytes.
	Canonical bool
}

type xmlTransaction struct {
	XMLName   xml.Name      `xml:"transaction"`
	Version   string        `xml:"version,attr"`
	ID        string        `xml:"id,attr,omitempty"`
	Objects   []xmlObject   `xml:"object"`
	Relations []xmlRelation `xml:"relation"`
	Unknown   []xmlUnknown  `xml:",any"`
}

type xmlObject struct {
	Class   string       `xml:"class,attr"`
	Mode    string       `xml:"mode,attr"`
	Dirty   string       `xml:"dirty,attr,omitempty"`
	Fields  []xmlField   `xml:"field"`
	Unknown []xmlUnknown `xml:",any"`
}

type xmlField struct {
	Name     string  `xml:"name,attr"`
	Type     string  `xml:"type,attr"`
	Value    *string `xml:"value,attr,omitempty"`
	Null     string  `xml:"null,attr,omitempty"`
	Encoding string  `xml:"encoding,attr,omitempty"`
}

type xmlRelation struct {
	Type       string       `xml:"type,attr"`
	TupleCount int          `xml:"tupleCount,attr"`
	Tuples     []xmlTuple   `xml:"tuple"`
	Unknown    []xmlUnknown `xml:",any"`
}

type xmlTuple struct {
	Left     string `xml:"left,attr"`
	Right    string `xml:"right,attr"`
	Mode     int    `xml:"mode,attr"`
	Encoding string `xml:"encoding,attr,omitempty"` // applies to left and right
}

type xmlUnknown struct {
	XMLName xml.Name
}

const (
	modeInsert = "insert"
	modeUpdate = "update"

	// encodingBase64 marks values holding characters XML 1.0 cannot carry.
	encodingBase64 = "base64"
)

// xmlSafe reports whether s is valid UTF-8 made only of characters allowed
// in XML 1.0 documents. encoding/xml replaces anything else with U+FFFD.
func xmlSafe(s string) bool {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return false
			}
		}
		switch {
		case r == 0x9, r == 0xA, r == 0xD,
			r >= 0x20 && r <= 0xD7FF,
			r >= 0xE000 && r <= 0xFFFD,
			r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

func encodeText(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decodeText reverses the encoding named by a value's encoding attribute.
func decodeText(encoding, s string) (string, error) {
	switch encoding {
	case "":
		return s, nil
	case encodingBase64:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unknown encoding %q", encoding)
	}
}

// Serialize writes the transaction state as XML: every loaded object with
// its mode and field values, then every relation journal with its tuples.
func (tx *Transaction) Serialize(opts SerializeOptions) ([]byte, error) {
	doc := xmlTransaction{Version: ir.SnapshotVersion}
	if !opts.Canonical {
		doc.ID = tx.id
	}

	objs := slices.DeleteFunc(tx.identity.Objects(), func(o *Object) bool { return !o.loaded })
	if opts.Canonical {
		slices.SortStableFunc(objs, func(a, b *Object) int {
			if c := strings.Compare(a.class.Name, b.class.Name); c != 0 {
				return c
			}
			return ir.Compare(a.Key(), b.Key())
		})
	}
	for _, obj := range objs {
		xo, err := serializeObject(obj, opts.Canonical)
		if err != nil {
			return nil, err
		}
		doc.Objects = append(doc.Objects, xo)
	}

	for _, name := range slices.Sorted(maps.Keys(tx.relations)) {
		tuples := tx.relations[name].Tuples()
		if len(tuples) == 0 {
			continue
		}
		if opts.Canonical {
			slices.SortStableFunc(tuples, func(a, b Tuple) int {
				if c := ir.Compare(a.Left, b.Left); c != 0 {
					return c
				}
				return ir.Compare(a.Right, b.Right)
			})
		}
		xr := xmlRelation{Type: name, TupleCount: len(tuples)}
		for _, t := range tuples {
			left, err := ir.FormatScalar(t.Left)
			if err != nil {
				return nil, fmt.Errorf("serialize relation %s: %w", name, err)
			}
			right, err := ir.FormatScalar(t.Right)
			if err != nil {
				return nil, fmt.Errorf("serialize relation %s: %w", name, err)
			}
			xt := xmlTuple{Left: left, Right: right, Mode: int(t.Mode)}
			if !xmlSafe(left) || !xmlSafe(right) {
				xt.Left, xt.Right, xt.Encoding = encodeText(left), encodeText(right), encodingBase64
			}
			xr.Tuples = append(xr.Tuples, xt)
		}
		doc.Relations = append(doc.Relations, xr)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return append(out, '\n'), nil
}

func serializeObject(obj *Object, canonical bool) (xmlObject, error) {
	xo := xmlObject{Class: obj.class.Name, Mode: modeUpdate}
	switch obj.state {
	case StateInsert:
		xo.Mode = modeInsert
	case StateClean:
		xo.Dirty = "false"
	}

	fields := slices.Clone(obj.class.Fields)
	if canonical {
		slices.SortFunc(fields, func(a, b ir.FieldInfo) int { return strings.Compare(a.Name, b.Name) })
	}
	for _, f := range fields {
		xf := xmlField{Name: f.Name, Type: f.Type}
		v := obj.Get(f.Name)
		if ir.IsNull(v) {
			xf.Null = "true"
		} else {
			text, err := ir.FormatScalar(v)
			if err != nil {
				return xmlObject{}, fmt.Errorf("serialize %s.%s: %w", obj.Identity(), f.Name, err)
			}
			if !xmlSafe(text) {
				text, xf.Encoding = encodeText(text), encodingBase64
			}
			xf.Value = &text
		}
		xo.Fields = append(xo.Fields, xf)
	}
	return xo, nil
}

// Deserialize installs the state recorded by Serialize into tx.
//
// Objects already registered are overwritten in place; others are created.
// Insert-mode and dirty objects join the dirty list, so a following Commit
// writes them. Unknown elements, classes, relations or fields fail with
// *DeserializationError.
func (tx *Transaction) Deserialize(data []byte) error {
	var doc xmlTransaction
	if err := xml.Unmarshal(data, &doc); err != nil {
		return &DeserializationError{Element: "transaction", Message: "malformed snapshot", Err: err}
	}
	if len(doc.Unknown) > 0 {
		return unknownElement(doc.Unknown[0])
	}
	if doc.Version != ir.SnapshotVersion {
		return &DeserializationError{Element: "transaction", Message: fmt.Sprintf("unsupported version %q", doc.Version)}
	}

	for _, xo := range doc.Objects {
		if err := tx.deserializeObject(xo); err != nil {
			return err
		}
	}
	for _, xr := range doc.Relations {
		if err := tx.deserializeRelation(xr); err != nil {
			return err
		}
	}
	tx.logger.Debug("snapshot deserialized", "tx", tx.id, "objects", len(doc.Objects), "relations", len(doc.Relations))
	return nil
}

func unknownElement(u xmlUnknown) error {
	return &DeserializationError{Element: u.XMLName.Local, Message: "unknown element"}
}

func (tx *Transaction) deserializeObject(xo xmlObject) error {
	if len(xo.Unknown) > 0 {
		return unknownElement(xo.Unknown[0])
	}
	class, ok := tx.schema.Class(xo.Class)
	if !ok {
		return &DeserializationError{Element: "object", Message: fmt.Sprintf("unknown class %q", xo.Class)}
	}

	values := ir.IRObject{}
	for _, xf := range xo.Fields {
		f, ok := class.Field(xf.Name)
		if !ok {
			return &DeserializationError{Element: "field", Message: fmt.Sprintf("unknown field %s.%s", class.Name, xf.Name)}
		}
		switch {
		case xf.Null == "true":
			values[f.Name] = ir.IRNull{}
		case xf.Value == nil:
			return &DeserializationError{Element: "field", Message: fmt.Sprintf("%s.%s has neither value nor null", class.Name, f.Name)}
		default:
			text, err := decodeText(xf.Encoding, *xf.Value)
			if err != nil {
				return &DeserializationError{Element: "field", Message: fmt.Sprintf("%s.%s", class.Name, f.Name), Err: err}
			}
			v, err := ir.ParseScalar(f.Type, text)
			if err != nil {
				return &DeserializationError{Element: "field", Message: fmt.Sprintf("%s.%s", class.Name, f.Name), Err: err}
			}
			values[f.Name] = v
		}
	}
	key := values[class.PrimaryKey]
	if ir.IsNull(key) {
		return &DeserializationError{Element: "object", Message: fmt.Sprintf("%s without primary key", class.Name)}
	}

	var state ObjectState
	switch {
	case xo.Mode == modeInsert:
		state = StateInsert
	case xo.Mode == modeUpdate && xo.Dirty == "false":
		state = StateClean
	case xo.Mode == modeUpdate:
		state = StateDirty
	default:
		return &DeserializationError{Element: "object", Message: fmt.Sprintf("unknown mode %q", xo.Mode)}
	}

	obj := tx.identity.FindByKey(class.Name, key)
	if obj == nil {
		obj = &Object{class: class, tx: tx, values: ir.IRObject{}}
		obj.fill(values)
		if err := tx.attach(obj); err != nil {
			return &DeserializationError{Element: "object", Message: fmt.Sprintf("cannot install %s", Identity{class.Name, key}), Err: err}
		}
	} else {
		merged := obj.values.Clone()
		maps.Copy(merged, values)
		obj.fill(merged)
	}
	obj.state = state
	if obj.needsSave() {
		tx.dirty.add(obj)
	}
	return nil
}

func (tx *Transaction) deserializeRelation(xr xmlRelation) error {
	if len(xr.Unknown) > 0 {
		return unknownElement(xr.Unknown[0])
	}
	table, err := tx.RelationTable(xr.Type)
	if err != nil {
		return &DeserializationError{Element: "relation", Message: fmt.Sprintf("unknown relation %q", xr.Type)}
	}
	info := table.Info()
	leftType, err := tx.sideKeyType(info.Left.Class)
	if err != nil {
		return err
	}
	rightType, err := tx.sideKeyType(info.Right.Class)
	if err != nil {
		return err
	}

	table.BeginDeserialization(xr.TupleCount)
	for _, xt := range xr.Tuples {
		leftText, err := decodeText(xt.Encoding, xt.Left)
		if err != nil {
			return &DeserializationError{Element: "tuple", Message: "left " + strconv.Quote(xt.Left), Err: err}
		}
		rightText, err := decodeText(xt.Encoding, xt.Right)
		if err != nil {
			return &DeserializationError{Element: "tuple", Message: "right " + strconv.Quote(xt.Right), Err: err}
		}
		left, err := ir.ParseScalar(leftType, leftText)
		if err != nil {
			return &DeserializationError{Element: "tuple", Message: "left " + strconv.Quote(xt.Left), Err: err}
		}
		right, err := ir.ParseScalar(rightType, rightText)
		if err != nil {
			return &DeserializationError{Element: "tuple", Message: "right " + strconv.Quote(xt.Right), Err: err}
		}
		if err := table.DeserializeTuple(left, right, TupleMode(xt.Mode)); err != nil {
			return &DeserializationError{Element: "tuple", Message: "invalid tuple", Err: err}
		}
	}
	if err := table.EndDeserialization(); err != nil {
		return &DeserializationError{Element: "relation", Message: "tuple count mismatch", Err: err}
	}
	return nil
}

func (tx *Transaction) sideKeyType(class string) (string, error) {
	c, ok := tx.schema.Class(class)
	if !ok {
		return "", &DeserializationError{Element: "relation", Message: fmt.Sprintf("unknown class %q", class)}
	}
	return c.KeyField().Type, nil
}
