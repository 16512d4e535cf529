package storage

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	fileModeType   = reflect.TypeOf(os.FileMode(0))
	visibilityType = reflect.TypeOf(Visibility(0))
)

// DecodeHook converts loosely typed configuration values into storage types:
// octal strings ("0644", "0o755") into os.FileMode and "public"/"private"
// into Visibility.
func DecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		switch to {
		case fileModeType:
			if from.Kind() != reflect.String {
				return data, nil
			}
			return ParseFileMode(reflect.ValueOf(data).String())
		case visibilityType:
			if from.Kind() != reflect.String {
				return data, nil
			}
			return ParseVisibility(reflect.ValueOf(data).String())
		}
		return data, nil
	}
}

// ParseFileMode parses an octal permission string.
func ParseFileMode(s string) (os.FileMode, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid permission %q: %w", s, err)
	}
	if mode > 0o7777 {
		return 0, fmt.Errorf("invalid permission %q: out of range", s)
	}
	return os.FileMode(mode), nil
}

// Decode decodes a configuration map into out using the storage hooks.
func Decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// DecodeWriteOptions builds WriteOptions from a per-call configuration map
// such as {"content-type": "text/plain", "overwrite": true, "s3": {"acl": "private"}}.
func DecodeWriteOptions(input map[string]any) (WriteOptions, error) {
	var opts WriteOptions
	if len(input) == 0 {
		return opts, nil
	}
	if err := Decode(input, &opts); err != nil {
		return WriteOptions{}, fmt.Errorf("failed to decode write options: %w", err)
	}
	return opts, nil
}
