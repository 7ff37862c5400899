package mcpserver

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Operation is one of the memo tools. The set is closed; dispatch switches
// over it exhaustively.
type Operation int

const (
	OpCreateMemo Operation = iota
	OpUpdateMemo
	OpGetMemo
	OpDeleteMemo
	OpListMemos
	OpSearchMemos
	OpGetAllContext
)

// Operations lists every tool in advertised order.
var Operations = []Operation{
	OpCreateMemo,
	OpUpdateMemo,
	OpListMemos,
	OpGetMemo,
	OpDeleteMemo,
	OpSearchMemos,
	OpGetAllContext,
}

func (o Operation) String() string {
	switch o {
	case OpCreateMemo:
		return "create_memo"
	case OpUpdateMemo:
		return "update_memo"
	case OpGetMemo:
		return "get_memo"
	case OpDeleteMemo:
		return "delete_memo"
	case OpListMemos:
		return "list_memos"
	case OpSearchMemos:
		return "search_memos"
	case OpGetAllContext:
		return "get_all_context"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation maps a tool name to its operation.
func ParseOperation(name string) (Operation, bool) {
	for _, op := range Operations {
		if op.String() == name {
			return op, true
		}
	}
	return 0, false
}

type param struct {
	name        string
	description string
}

func (o Operation) description() string {
	switch o {
	case OpCreateMemo:
		return "Create a new memo with title and content"
	case OpUpdateMemo:
		return "Replace the content of an existing memo"
	case OpGetMemo:
		return "Get a specific memo by ID"
	case OpDeleteMemo:
		return "Delete a memo by ID"
	case OpListMemos:
		return "List all stored memos"
	case OpSearchMemos:
		return "Search memos. Supports AND/OR/NOT, quoted phrases and * ? wildcards"
	case OpGetAllContext:
		return "Get every memo combined into one document"
	default:
		return ""
	}
}

func (o Operation) params() []param {
	id := param{"id", "The ID of the memo"}
	switch o {
	case OpCreateMemo:
		return []param{{"title", "The title of the memo"}, {"content", "The content of the memo"}}
	case OpUpdateMemo:
		return []param{id, {"content", "The new content of the memo"}}
	case OpGetMemo, OpDeleteMemo:
		return []param{id}
	case OpSearchMemos:
		return []param{{"query", "The search query"}}
	case OpListMemos, OpGetAllContext:
		return nil
	default:
		return nil
	}
}

// InputSchema returns the JSON schema of the tool's arguments. Every
// parameter is a required string.
func (o Operation) InputSchema() map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}
	for _, p := range o.params() {
		properties[p.name] = map[string]interface{}{
			"type":        "string",
			"description": p.description,
		}
		required = append(required, p.name)
	}

	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
		"required":             required,
	}
}

// Tool returns the advertised definition of the operation.
func (o Operation) Tool() Tool {
	return Tool{
		Name:        o.String(),
		Description: o.description(),
		InputSchema: o.InputSchema(),
	}
}

func compileSchemas() (map[Operation]*gojsonschema.Schema, error) {
	schemas := make(map[Operation]*gojsonschema.Schema, len(Operations))
	for _, op := range Operations {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(op.InputSchema()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", op, err)
		}
		schemas[op] = schema
	}
	return schemas, nil
}

// validateArguments checks args against a compiled schema.
func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}
