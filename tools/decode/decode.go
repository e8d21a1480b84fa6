package decode

import (
	"github.com/mitchellh/mapstructure"
	pkgerrors "github.com/pkg/errors"
)

// Map decodes a string-keyed map into T using mapstructure tags. Input is
// weakly typed: environment values arrive as strings, so "20" fills an int
// field and "true" a bool.
func Map[T any](m map[string]any) (*T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "new decoder")
	}
	if err := dec.Decode(m); err != nil {
		return nil, pkgerrors.WithMessage(err, "decode config map")
	}
	return &out, nil
}
