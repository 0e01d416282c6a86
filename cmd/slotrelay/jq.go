package main

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// compileJQFilters parses and compiles every filter expression.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// filterJQ keeps the items for which every filter yields a truthy first
// result. Items are evaluated in their JSON form.
func filterJQ[T any](items []T, codes []*gojq.Code) ([]T, error) {
	if len(codes) == 0 {
		return items, nil
	}

	kept := make([]T, 0, len(items))
	for _, item := range items {
		ok, err := matchesJQ(item, codes)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func matchesJQ(item any, codes []*gojq.Code) (bool, error) {
	// gojq only understands plain JSON values, not arbitrary structs.
	data, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("failed to marshal item for jq: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return false, fmt.Errorf("failed to unmarshal item for jq: %w", err)
	}

	for _, code := range codes {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := result.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(result) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
