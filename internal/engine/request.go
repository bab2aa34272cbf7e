package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Action string

const (
	ActionList        Action = "list"
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionCount       Action = "count"
	ActionAggregate   Action = "aggregate"
	ActionBatchCreate Action = "batch_create"
)

// CompiledQuery is a statement ready for the executor. Params[i] binds
// placeholder $i+1; SQL never contains a caller-supplied value.
type CompiledQuery struct {
	SQL    string
	Params []any
}

// Operation is one decoded CRUD request. Each action has its own concrete
// type carrying only the fields that action uses.
type Operation interface {
	Action() Action
	Compile() (CompiledQuery, error)
}

// Selection is the filtering part shared by list, count and aggregate.
type Selection struct {
	Filters        []Filter
	Combine        string
	ExcludeDeleted bool
}

type AggregateSpec struct {
	Function string `json:"function"`
	Field    string `json:"field"`
	Alias    string `json:"alias"`
}

// Body is the raw request object, decoded lazily per field.
type Body map[string]json.RawMessage

// ParseRequest decodes a CRUD request body into the Operation for its
// action. Shape problems are reported here; identifier checks on the table
// happen when the operation is compiled.
func ParseRequest(data []byte) (Operation, error) {
	var body Body
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return nil, InvalidPayloadError("Invalid JSON body")
	}
	return body.Operation()
}

// Operation builds the typed operation for the body's action.
func (b Body) Operation() (Operation, error) {
	action, _ := b.String("action")
	table, _ := b.String("table")

	switch Action(action) {
	case ActionList:
		sel, err := b.selection()
		if err != nil {
			return nil, err
		}
		fields, err := b.StringList("fields")
		if err != nil {
			return nil, err
		}
		limit, err := b.Int("limit")
		if err != nil {
			return nil, err
		}
		offset, err := b.Int("offset")
		if err != nil {
			return nil, err
		}
		sort, _ := b.String("sort_column")
		return &ListOp{Table: table, Fields: fields, Selection: sel, Sort: sort, Limit: limit, Offset: offset}, nil

	case ActionCount:
		sel, err := b.selection()
		if err != nil {
			return nil, err
		}
		return &CountOp{Table: table, Selection: sel}, nil

	case ActionAggregate:
		sel, err := b.selection()
		if err != nil {
			return nil, err
		}
		var aggs []AggregateSpec
		if raw, ok := b["aggregates"]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &aggs); err != nil {
				return nil, InvalidPayloadError("aggregates must be an array of {function, field, alias}")
			}
		}
		groupBy, err := b.StringList("group_by")
		if err != nil {
			return nil, err
		}
		limit, err := b.Int("limit")
		if err != nil {
			return nil, err
		}
		sort, _ := b.String("sort_column")
		return &AggregateOp{Table: table, Aggregates: aggs, GroupBy: groupBy, Selection: sel, Sort: sort, Limit: limit}, nil

	case ActionCreate, ActionUpdate, ActionDelete:
		row, err := b.object("payload")
		if err != nil {
			return nil, err
		}
		switch Action(action) {
		case ActionCreate:
			return &CreateOp{Table: table, Payload: row}, nil
		case ActionUpdate:
			return &UpdateOp{Table: table, Payload: row}, nil
		default:
			return &DeleteOp{Table: table, Payload: row}, nil
		}

	case ActionBatchCreate:
		raw, ok := b["payload"]
		if !ok || isNull(raw) || firstByte(raw) != '[' {
			return nil, EmptyPayloadError("batch_create requires a non-empty payload array")
		}
		var rows []Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, InvalidPayloadError("payload must be an array of objects")
		}
		return &BatchCreateOp{Table: table, Rows: rows}, nil

	default:
		return nil, UnknownActionError(action)
	}
}

func (b Body) selection() (Selection, error) {
	filters, err := ParseFilters(b)
	if err != nil {
		return Selection{}, err
	}
	combine, _ := b.String("combine_type")
	exclude, err := b.Bool("auto_exclude_deleted")
	if err != nil {
		return Selection{}, err
	}
	return Selection{Filters: filters, Combine: combine, ExcludeDeleted: exclude}, nil
}

// object decodes key as a single JSON object. Arrays are rejected because
// create/update/delete act on exactly one row.
func (b Body) object(key string) (*Row, error) {
	raw, ok := b[key]
	if !ok || isNull(raw) {
		return nil, EmptyPayloadError("Payload is required")
	}
	if firstByte(raw) != '{' {
		return nil, InvalidPayloadError("Payload must be a single object")
	}
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, InvalidPayloadError("Invalid payload object")
	}
	return &row, nil
}

// String returns key as a string. Numbers and booleans are accepted and
// rendered in their JSON text form, since clients send filter values both ways.
func (b Body) String(key string) (string, bool) {
	raw, ok := b[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "true" || trimmed == "false" {
		return trimmed, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// Int returns key as a non-negative integer, or nil when absent.
func (b Body) Int(key string) (*int, error) {
	s, ok := b.String(key)
	if !ok || s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, InvalidPayloadError(fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return &n, nil
}

func (b Body) Bool(key string) (bool, error) {
	s, ok := b.String(key)
	if !ok || s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, InvalidPayloadError(fmt.Sprintf("%s must be a boolean", key))
	}
	return v, nil
}

// StringList accepts either a JSON array of strings or a comma-separated
// string.
func (b Body) StringList(key string) ([]string, error) {
	raw, ok := b[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	if firstByte(raw) == '[' {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, InvalidPayloadError(fmt.Sprintf("%s must be a list of names", key))
		}
		return list, nil
	}
	s, _ := b.String(key)
	var list []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
