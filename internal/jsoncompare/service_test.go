// internal/jsoncompare/service_test.go
package jsoncompare

import (
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		opts     Options
		expected bool
	}{
		{"Identical bytes", `{"a":1}`, `{"a":1}`, DefaultOptions(), true},
		{"Key order", `{"a":1,"b":{"c":"x","d":true}}`, `{"b":{"d":true,"c":"x"},"a":1}`, DefaultOptions(), true},
		{"Number spelling", `{"n":1}`, `{"n":1.0}`, DefaultOptions(), true},
		{"Different value", `{"a":1}`, `{"a":2}`, DefaultOptions(), false},
		{"Missing vs empty", `{"a":1,"tags":[]}`, `{"a":1}`, DefaultOptions(), true},
		{"Missing vs null", `{"a":1,"child":null}`, `{"a":1}`, DefaultOptions(), true},
		{"Missing vs empty strict", `{"a":1,"tags":[]}`, `{"a":1}`, Options{}, false},
		{"Array order matters by default", `[1,2]`, `[2,1]`, DefaultOptions(), false},
		{"Array order ignored", `[1,2]`, `[2,1]`, Options{IgnoreArrayOrder: true}, true},
		{"Ignored keys", `{"a":1,"executedAt":"x"}`, `{"a":1,"executedAt":"y"}`,
			Options{IgnoreKeys: []*regexp.Regexp{regexp.MustCompile(`At$`)}}, true},
		{"Object vs array", `{}`, `[]`, Options{}, false},
		{"Invalid JSON", `{`, `{}`, DefaultOptions(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compare([]byte(tt.a), []byte(tt.b), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.AreEquivalent, res.Diff)
			if res.AreEquivalent {
				assert.Empty(t, res.Diff)
			} else {
				assert.NotEmpty(t, res.Diff)
			}
		})
	}
}

func TestComparer_Equal(t *testing.T) {
	c := NewComparer(zaptest.NewLogger(t), DefaultOptions())

	type target struct {
		Selector map[string]interface{} `json:"selector"`
		Meta     map[string]string      `json:"meta,omitempty"`
	}
	a := target{Selector: map[string]interface{}{"type": "role", "role": "button", "name": "Save"}}
	b := target{Selector: map[string]interface{}{"name": "Save", "role": "button", "type": "role"}, Meta: map[string]string{}}
	assert.True(t, c.Equal(a, b))

	b.Selector["nth"] = 1
	assert.False(t, c.Equal(a, b))

	assert.False(t, c.Equal(a, func() {}), "unencodable values never compare equal")
	assert.True(t, c.Equal(nil, map[string]string{}))
}

// FuzzCompare_Invariants checks symmetry and reflexivity on arbitrary inputs.
func FuzzCompare_Invariants(f *testing.F) {
	f.Add([]byte(`{"type":"role","nth":0}`), []byte(`{"nth":0,"type":"role"}`))
	f.Add([]byte(`[1, 2]`), []byte(`[2, 1]`))
	f.Add([]byte(`invalid`), []byte(`{`))

	opts := DefaultOptions()
	f.Fuzz(func(t *testing.T, a, b []byte) {
		ab, errA := Compare(a, b, opts)
		ba, errB := Compare(b, a, opts)
		if errA != nil || errB != nil {
			t.Fatalf("Compare never returns an error: %v / %v", errA, errB)
		}
		if ab.AreEquivalent != ba.AreEquivalent {
			t.Errorf("symmetry violated: %v vs %v", ab.AreEquivalent, ba.AreEquivalent)
		}
		if aa, _ := Compare(a, a, opts); !aa.AreEquivalent {
			t.Errorf("reflexivity violated for %q", a)
		}
	})
}

func TestCompare_Concurrent(t *testing.T) {
	a := []byte(`{"selector":{"type":"text","value":"Go"},"details":{"op":"fill"}}`)
	b := []byte(`{"details":{"op":"fill"},"selector":{"value":"Go","type":"text"}}`)
	c := NewComparer(nil, DefaultOptions())

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Compare(a, b)
			if err != nil {
				errs <- fmt.Sprintf("unexpected error: %v", err)
				return
			}
			if !res.AreEquivalent {
				errs <- fmt.Sprintf("expected equivalence, diff:\n%s", res.Diff)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
