// internal/jsoncompare/service.go
package jsoncompare

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
)

// Comparer performs order-independent structural comparison of JSON documents.
type Comparer struct {
	logger *zap.Logger
	opts   Options
}

// NewComparer creates a comparer with the given options.
func NewComparer(logger *zap.Logger, opts Options) *Comparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparer{logger: logger.Named("jsoncompare"), opts: opts}
}

// Compare decodes both documents and compares them structurally.
func (c *Comparer) Compare(bodyA, bodyB []byte) (*Result, error) {
	return Compare(bodyA, bodyB, c.opts)
}

// Equal reports whether two values encode to structurally equal JSON.
func (c *Comparer) Equal(a, b interface{}) bool {
	bodyA, errA := json.Marshal(a)
	bodyB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		c.logger.Warn("Values could not be encoded for comparison", zap.NamedError("errA", errA), zap.NamedError("errB", errB))
		return false
	}
	res, err := c.Compare(bodyA, bodyB)
	if err != nil {
		return false
	}
	if !res.AreEquivalent {
		c.logger.Debug("Structural difference", zap.String("diff", res.Diff))
	}
	return res.AreEquivalent
}

// Compare is the stateless form of Comparer.Compare.
func Compare(bodyA, bodyB []byte, opts Options) (*Result, error) {
	if bytes.Equal(bodyA, bodyB) {
		return &Result{AreEquivalent: true, IsJSON: json.Valid(bodyA)}, nil
	}

	dataA, errA := decode(bodyA)
	dataB, errB := decode(bodyB)
	if errA != nil || errB != nil {
		return &Result{
			AreEquivalent: false,
			Diff: fmt.Sprintf("content differs (non-JSON or mixed). length A: %d (JSON: %v), length B: %d (JSON: %v)",
				len(bodyA), errA == nil, len(bodyB), errB == nil),
			IsJSON: errA == nil || errB == nil,
		}, nil
	}

	normA := normalize(dataA, opts)
	normB := normalize(dataB, opts)
	diff := cmp.Diff(normA, normB, buildCmpOptions(opts)...)
	return &Result{AreEquivalent: diff == "", Diff: diff, IsJSON: true}, nil
}

// decode parses a single JSON value. Empty input decodes to null.
func decode(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// normalize drops ignored keys and, with EquateEmpty, empty members.
func normalize(data interface{}, opts Options) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			if ignored(key, opts) {
				continue
			}
			n := normalize(val, opts)
			if opts.EquateEmpty && isEmpty(n) {
				continue
			}
			out[key] = n
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalize(val, opts)
		}
		return out
	case json.Number:
		// 1 and 1.0 are the same number
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return data
	}
}

func ignored(key string, opts Options) bool {
	for _, pattern := range opts.IgnoreKeys {
		if pattern.MatchString(key) {
			return true
		}
	}
	return false
}

func buildCmpOptions(opts Options) cmp.Options {
	var cmpOpts cmp.Options
	if opts.EquateEmpty {
		cmpOpts = append(cmpOpts, equateEmptyOption())
	}
	if opts.IgnoreArrayOrder {
		cmpOpts = append(cmpOpts, cmpopts.SortSlices(genericSliceLess))
	}
	return cmpOpts
}

// isEmpty reports whether v is JSON null, {} or [].
func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return rv.Len() == 0
	}
	return false
}

// equateEmptyOption equates null with any empty structure. cmpopts.EquateEmpty
// does not treat a nil interface as empty.
func equateEmptyOption() cmp.Option {
	return cmp.FilterValues(
		func(x, y interface{}) bool { return isEmpty(x) && isEmpty(y) },
		cmp.Comparer(func(x, y interface{}) bool {
			if x == nil || y == nil {
				return true
			}
			return reflect.ValueOf(x).Kind() == reflect.ValueOf(y).Kind()
		}),
	)
}

// genericSliceLess orders decoded JSON values deterministically.
func genericSliceLess(x, y interface{}) bool {
	vx := reflect.ValueOf(x)
	vy := reflect.ValueOf(y)
	if !vx.IsValid() {
		return vy.IsValid()
	}
	if !vy.IsValid() {
		return false
	}
	if vx.Type() != vy.Type() {
		return vx.Type().String() < vy.Type().String()
	}
	switch vx.Kind() {
	case reflect.String:
		return vx.String() < vy.String()
	case reflect.Float64:
		return vx.Float() < vy.Float()
	case reflect.Bool:
		return !vx.Bool() && vy.Bool()
	default:
		return fmt.Sprint(x) < fmt.Sprint(y)
	}
}
