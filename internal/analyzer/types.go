package analyzer

// Direction of a declared procedure parameter.
type Direction string

const (
	DirectionIn    Direction = "IN"
	DirectionOut   Direction = "OUT"
	DirectionInOut Direction = "IN_OUT"
)

// Operation tags recorded per field occurrence.
const (
	OpRead      = "read"
	OpWrite     = "write"
	OpTransform = "transform"
)

type Parameter struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Type      string    `json:"type"`
	Position  int       `json:"position"`
}

// UsageContext records the statement kind a field occurrence was seen in.
type UsageContext struct {
	Kind      string `json:"kind"` // select, where, update, insert
	Statement string `json:"statement"`
}

type FieldUsage struct {
	FieldName       string         `json:"field_name"`
	ReadBy          []string       `json:"read_by,omitempty"`
	WrittenBy       []string       `json:"written_by,omitempty"`
	Transformations []string       `json:"transformations,omitempty"`
	Operations      []string       `json:"operations,omitempty"`
	Contexts        []UsageContext `json:"contexts,omitempty"`
}

// Result is the structured fact set extracted from one procedure source.
type Result struct {
	Procedures        []string
	Tables            []string
	Fields            map[string]*FieldUsage
	Parameters        []Parameter
	Variables         []string
	ControlStructures []string
	ComplexityScore   int
}
