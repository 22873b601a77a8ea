// Package overlay interprets the visual guidance tool calls of a live
// session. The model draws on the user's camera view by calling
// highlightArea and pointToArea; this package validates those calls,
// keeps the current set of on-screen elements and produces the
// acknowledgements the conversation needs to continue.
package overlay

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/gemini"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/logger"
	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/types"
)

// Tool names the model may call.
const (
	ToolHighlightArea = "highlightArea"
	ToolPointToArea   = "pointToArea"
)

// ToolCallError reports a malformed or unknown tool call. The call is
// still acknowledged to the model so the conversation does not stall;
// only the overlay update is skipped.
type ToolCallError struct {
	Call string
	Err  error
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool call %s: %v", e.Call, e.Err)
}

func (e *ToolCallError) Unwrap() error { return e.Err }

const highlightSchemaJSON = `{
	"type": "object",
	"properties": {
		"x":       {"type": "number", "minimum": 0, "maximum": 100},
		"y":       {"type": "number", "minimum": 0, "maximum": 100},
		"width":   {"type": "number", "minimum": 0, "maximum": 100},
		"height":  {"type": "number", "minimum": 0, "maximum": 100},
		"comment": {"type": "string"}
	},
	"required": ["x", "y", "width", "height", "comment"]
}`

const pointSchemaJSON = `{
	"type": "object",
	"properties": {
		"x":       {"type": "number", "minimum": 0, "maximum": 100},
		"y":       {"type": "number", "minimum": 0, "maximum": 100},
		"radius":  {"type": "number", "minimum": 0, "maximum": 100},
		"comment": {"type": "string"}
	},
	"required": ["x", "y", "comment"]
}`

var (
	highlightSchema = gojsonschema.NewStringLoader(highlightSchemaJSON)
	pointSchema     = gojsonschema.NewStringLoader(pointSchemaJSON)
)

// Declarations returns the guidance tools advertised in session setup.
func Declarations() []gemini.FunctionDeclaration {
	num := func(desc string) *gemini.Schema {
		return &gemini.Schema{Type: "NUMBER", Description: desc}
	}
	return []gemini.FunctionDeclaration{
		{
			Name:        ToolHighlightArea,
			Description: "Highlights a rectangular area on the image to draw the user's attention to it.",
			Parameters: &gemini.Schema{
				Type: "OBJECT",
				Properties: map[string]*gemini.Schema{
					"x":       num("The top-left x-coordinate of the box as a percentage (0-100)."),
					"y":       num("The top-left y-coordinate of the box as a percentage (0-100)."),
					"width":   num("The width of the box as a percentage (0-100)."),
					"height":  num("The height of the box as a percentage (0-100)."),
					"comment": {Type: "STRING", Description: "A short, step-by-step instructional comment explaining why this area is highlighted."},
				},
				Required: []string{"x", "y", "width", "height", "comment"},
			},
		},
		{
			Name:        ToolPointToArea,
			Description: "Draws an animated, pulsing circle at a specific point on the image to indicate a precise location of interest.",
			Parameters: &gemini.Schema{
				Type: "OBJECT",
				Properties: map[string]*gemini.Schema{
					"x":       num("The center x-coordinate of the circle as a percentage (0-100)."),
					"y":       num("The center y-coordinate of the circle as a percentage (0-100)."),
					"radius":  {Type: "NUMBER", Description: "The radius of the circle as a percentage (e.g., 5).", Default: types.DefaultPointRadius},
					"comment": {Type: "STRING", Description: "A short, step-by-step instructional comment explaining why this point is important."},
				},
				Required: []string{"x", "y", "comment"},
			},
		},
	}
}

// Interpreter tracks the overlay elements currently on screen. Each
// tool-call event replaces the previous set; the calls within one
// event accumulate.
type Interpreter struct {
	mu       sync.Mutex
	elements []types.InteractiveElement
	onUpdate func([]types.InteractiveElement)
}

// NewInterpreter builds an interpreter. onUpdate, if not nil, is
// called with the new element set after each tool-call event.
func NewInterpreter(onUpdate func([]types.InteractiveElement)) *Interpreter {
	return &Interpreter{onUpdate: onUpdate}
}

// HandleToolCall applies one server tool-call event and returns the
// acknowledgements to send back. Every call is acknowledged with a
// generic success, including calls whose arguments fail validation;
// those are logged and excluded from the overlay.
func (in *Interpreter) HandleToolCall(tc *gemini.ToolCall) []gemini.FunctionResponse {
	if tc == nil || len(tc.FunctionCalls) == 0 {
		return nil
	}

	var next []types.InteractiveElement
	responses := make([]gemini.FunctionResponse, 0, len(tc.FunctionCalls))

	for _, call := range tc.FunctionCalls {
		if el, err := interpretCall(call); err != nil {
			logger.Warn("ignoring bad tool call", "tool", call.Name, "error", err)
		} else {
			next = append(next, el)
		}
		responses = append(responses, gemini.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": "ok"},
		})
	}

	in.mu.Lock()
	in.elements = next
	fn := in.onUpdate
	snapshot := append([]types.InteractiveElement(nil), next...)
	in.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return responses
}

func interpretCall(call gemini.FunctionCall) (types.InteractiveElement, error) {
	var schema gojsonschema.JSONLoader
	switch call.Name {
	case ToolHighlightArea:
		schema = highlightSchema
	case ToolPointToArea:
		schema = pointSchema
	default:
		return types.InteractiveElement{}, &ToolCallError{Call: call.Name, Err: fmt.Errorf("unknown tool")}
	}

	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(args))
	if err != nil {
		return types.InteractiveElement{}, &ToolCallError{Call: call.Name, Err: err}
	}
	if !result.Valid() {
		return types.InteractiveElement{}, &ToolCallError{Call: call.Name, Err: fmt.Errorf("invalid arguments: %v", result.Errors())}
	}

	var parsed struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Width   float64 `json:"width"`
		Height  float64 `json:"height"`
		Radius  float64 `json:"radius"`
		Comment string  `json:"comment"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return types.InteractiveElement{}, &ToolCallError{Call: call.Name, Err: err}
	}

	var el types.InteractiveElement
	if call.Name == ToolHighlightArea {
		el, err = types.NewHighlight(parsed.X, parsed.Y, parsed.Width, parsed.Height, parsed.Comment)
	} else {
		el, err = types.NewPoint(parsed.X, parsed.Y, parsed.Radius, parsed.Comment)
	}
	if err != nil {
		return types.InteractiveElement{}, &ToolCallError{Call: call.Name, Err: err}
	}
	return el, nil
}

// Elements returns a copy of the current overlay set.
func (in *Interpreter) Elements() []types.InteractiveElement {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]types.InteractiveElement(nil), in.elements...)
}

// Drain returns the current overlay set and clears it, used when a
// turn completes and the elements move into the transcript.
func (in *Interpreter) Drain() []types.InteractiveElement {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.elements
	in.elements = nil
	return out
}
