package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	invopop "github.com/invopop/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// correlationFieldKeys are the names a parameter struct's fields may
// use for values the registry supplies itself; they are stripped from
// the schema shown to the model and filled in by reflection before
// the callable runs.
var correlationFieldKeys = map[string]string{
	"UserID": "user_id", "userID": "user_id", "user_id": "user_id",
	"ThreadID": "thread_id", "threadID": "thread_id", "thread_id": "thread_id",
	"TurnCorrelationID": "turn_correlation_id", "turnCorrelationID": "turn_correlation_id", "turn_correlation_id": "turn_correlation_id",
}

// DerivedTool wraps a typed callable as a schema-derived Tool.
type DerivedTool[P any] struct {
	name        string
	description string
	rawSchema   json.RawMessage
	validator   *jsonschema.Schema
	fn          func(ctx context.Context, userID, threadID, turnCorrelationID string, params P) (Result, error)
}

func (t *DerivedTool[P]) Name() string               { return t.name }
func (t *DerivedTool[P]) Description() string        { return t.description }
func (t *DerivedTool[P]) Schema() json.RawMessage     { return t.rawSchema }

// Execute validates arguments against the derived schema, decodes them
// into P, supplies any correlation fields P declares by name, and
// invokes fn. Validation failures are reported as the final value's
// error envelope, matching the "errors never thrown past the adapter"
// contract.
func (t *DerivedTool[P]) Execute(ctx context.Context, userID, threadID, turnCorrelationID string, arguments json.RawMessage) *Invocation {
	return FromFunc(ctx, t.name, arguments, func(ctx context.Context) (Result, error) {
		var decoded interface{}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &decoded); err != nil {
				return Result{}, fmt.Errorf("decode arguments: %w", err)
			}
		} else {
			decoded = map[string]interface{}{}
		}
		if err := t.validator.Validate(decoded); err != nil {
			return Result{}, fmt.Errorf("validate arguments: %w", err)
		}

		var params P
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return Result{}, fmt.Errorf("decode parameters: %w", err)
			}
		}
		injectCorrelationFields(&params, userID, threadID, turnCorrelationID)

		return t.fn(ctx, userID, threadID, turnCorrelationID, params)
	})
}

// RegisterDerived reflects P's JSON schema (stripping any
// user_id/thread_id/turn_correlation_id fields by name), compiles a
// validator for it, and registers a schema-derived tool under name.
// description should be a docstring's first paragraph.
func RegisterDerived[P any](reg *Registry, name, description string, fn func(ctx context.Context, userID, threadID, turnCorrelationID string, params P) (Result, error)) error {
	schema := reflectParamSchema[P]()
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal derived schema for %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := "mem://tools/" + name + ".json"
	if err := compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	validator, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", name, err)
	}

	return reg.Register(&DerivedTool[P]{
		name:        name,
		description: description,
		rawSchema:   raw,
		validator:   validator,
		fn:          fn,
	})
}

func reflectParamSchema[P any]() *invopop.Schema {
	reflector := &invopop.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(new(P))
	if schema.Properties == nil {
		return schema
	}

	for pair := schema.Properties.Oldest(); pair != nil; {
		next := pair.Next()
		key := pair.Key
		if _, isCorrelation := correlationFieldKeys[key]; isCorrelation {
			schema.Properties.Delete(key)
			schema.Required = removeString(schema.Required, key)
		}
		pair = next
	}
	return schema
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, item := range items {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}

// injectCorrelationFields sets any of params' UserID/ThreadID/
// TurnCorrelationID-named string fields to the caller's identity.
func injectCorrelationFields(params interface{}, userID, threadID, turnCorrelationID string) {
	v := reflect.ValueOf(params)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return
	}
	elem := v.Elem()
	for fieldName, kind := range map[string]string{
		"UserID": "user_id", "ThreadID": "thread_id", "TurnCorrelationID": "turn_correlation_id",
	} {
		field := elem.FieldByName(fieldName)
		if !field.IsValid() || field.Kind() != reflect.String || !field.CanSet() {
			continue
		}
		switch kind {
		case "user_id":
			field.SetString(userID)
		case "thread_id":
			field.SetString(threadID)
		case "turn_correlation_id":
			field.SetString(turnCorrelationID)
		}
	}
}
