package board

import "encoding/json"

// Position is a point on the unbounded canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Note is a sticky note. ID is client generated and never changes.
type Note struct {
	ID       string   `json:"id" validate:"required"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Color    string   `json:"color,omitempty"`
	Position Position `json:"position"`

	// Extra holds members the client sent that are not modelled above.
	// It is never modified after decoding.
	Extra Fields `json:"-"`

	shape shape
}

var noteFields = []string{"id", "title", "content", "color", "position"}

// Member slots in Note.shape.
const (
	slotTitle = iota
	slotContent
	slotColor
	slotPosition
)

// MarshalJSON encodes the modelled fields followed by Extra. A zero-valued
// member that was decoded is written back the way the client sent it.
// Otherwise empty text is omitted and the position is always written.
func (n Note) MarshalJSON() ([]byte, error) {
	var w objectWriter
	if err := w.field("id", n.ID); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name  string
		slot  int
		value string
	}{
		{"title", slotTitle, n.Title},
		{"content", slotContent, n.Content},
		{"color", slotColor, n.Color},
	} {
		if err := w.member(f.name, f.value, f.value == "", n.shape.form(f.slot, formOmitted)); err != nil {
			return nil, err
		}
	}
	zero := n.Position == Position{}
	if err := w.member("position", n.Position, zero, n.shape.form(slotPosition, formWritten)); err != nil {
		return nil, err
	}
	w.extras(n.Extra, noteFields...)
	return w.bytes(), nil
}

// UnmarshalJSON decodes a note, keeping unknown members in Extra.
func (n *Note) UnmarshalJSON(data []byte) error {
	fields, extra, err := split(data, noteFields...)
	if err != nil {
		return err
	}
	var out Note
	for name, dst := range map[string]any{
		"id":       &out.ID,
		"title":    &out.Title,
		"content":  &out.Content,
		"color":    &out.Color,
		"position": &out.Position,
	} {
		if err := decodeField(fields, name, dst); err != nil {
			return &FieldError{Entity: "note", Field: name, Err: err}
		}
	}
	if out.Title == "" {
		out.shape.record(slotTitle, formOf(fields, "title"), formOmitted)
	}
	if out.Content == "" {
		out.shape.record(slotContent, formOf(fields, "content"), formOmitted)
	}
	if out.Color == "" {
		out.shape.record(slotColor, formOf(fields, "color"), formOmitted)
	}
	if out.Position == (Position{}) {
		out.shape.record(slotPosition, formOf(fields, "position"), formWritten)
	}
	out.Extra = extra
	*n = out
	return nil
}

// Connection is a directed edge between two notes. The endpoints are not
// required to exist.
type Connection struct {
	ID   string `json:"id" validate:"required"`
	From string `json:"from"`
	To   string `json:"to"`

	Extra Fields `json:"-"`

	shape shape
}

var connectionFields = []string{"id", "from", "to"}

// Member slots in Connection.shape.
const (
	slotFrom = iota
	slotTo
)

// MarshalJSON encodes the modelled fields followed by Extra. Endpoints are
// always written unless a decoded connection arrived without them or with null.
func (c Connection) MarshalJSON() ([]byte, error) {
	var w objectWriter
	if err := w.field("id", c.ID); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name  string
		slot  int
		value string
	}{{"from", slotFrom, c.From}, {"to", slotTo, c.To}} {
		if err := w.member(f.name, f.value, f.value == "", c.shape.form(f.slot, formWritten)); err != nil {
			return nil, err
		}
	}
	w.extras(c.Extra, connectionFields...)
	return w.bytes(), nil
}

// UnmarshalJSON decodes a connection, keeping unknown members in Extra.
func (c *Connection) UnmarshalJSON(data []byte) error {
	fields, extra, err := split(data, connectionFields...)
	if err != nil {
		return err
	}
	var out Connection
	for name, dst := range map[string]*string{
		"id":   &out.ID,
		"from": &out.From,
		"to":   &out.To,
	} {
		if err := decodeField(fields, name, dst); err != nil {
			return &FieldError{Entity: "connection", Field: name, Err: err}
		}
	}
	if out.From == "" {
		out.shape.record(slotFrom, formOf(fields, "from"), formWritten)
	}
	if out.To == "" {
		out.shape.record(slotTo, formOf(fields, "to"), formWritten)
	}
	out.Extra = extra
	*c = out
	return nil
}

// FieldError reports a member of a note or connection with the wrong JSON type.
type FieldError struct {
	Entity string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return "board: " + e.Entity + "." + e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

var (
	_ json.Marshaler   = Note{}
	_ json.Unmarshaler = (*Note)(nil)
	_ json.Marshaler   = Connection{}
	_ json.Unmarshaler = (*Connection)(nil)
)
