package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/formsurge/internal/formschema"
)

// ErrNotFound is returned by Load when no schema is cached for the form.
var ErrNotFound = errors.New("schema not found")

// Store persists extracted schemas so later runs can skip extraction.
type Store interface {
	// Load returns the cached schema for formURL, or ErrNotFound.
	Load(ctx context.Context, formURL string) (*formschema.Schema, error)
	// Save writes the schema under the key derived from schema.FormURL.
	Save(ctx context.Context, schema *formschema.Schema) error
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KeyForURL derives a stable cache key. Published form URLs carry their id as
// the path segment after /d/e/; anything else is hashed.
func KeyForURL(formURL string) string {
	if u, err := url.Parse(formURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i+2 < len(segments); i++ {
			if segments[i] == "d" && segments[i+1] == "e" && segments[i+2] != "" {
				return segments[i+2]
			}
		}
	}
	sum := md5.Sum([]byte(formURL))
	return hex.EncodeToString(sum[:])[:10]
}

// decodeSchema parses and validates a stored document.
func decodeSchema(data []byte) (*formschema.Schema, error) {
	var schema formschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	for i := range schema.Questions {
		if schema.Questions[i].Options == nil {
			schema.Questions[i].Options = []string{}
		}
	}
	return &schema, nil
}
