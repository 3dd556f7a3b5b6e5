// browser/dom/config.go
package dom

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Loader fetches the document for a URL on navigation.
type Loader func(ctx context.Context, url string) (io.Reader, error)

// Config configures a static page.
type Config struct {
	// TestIDAttribute names the stable test identifier attribute.
	TestIDAttribute string
	// Loader is consulted by Navigate. Without one, navigation only records the URL.
	Loader Loader
	Logger *zap.Logger
}

// NewDefaultConfig returns the configuration used when none is supplied.
func NewDefaultConfig() Config {
	return Config{
		TestIDAttribute: "data-testid",
		Logger:          zap.NewNop(),
	}
}

func (c Config) withDefaults() Config {
	def := NewDefaultConfig()
	if c.TestIDAttribute == "" {
		c.TestIDAttribute = def.TestIDAttribute
	}
	c.TestIDAttribute = strings.ToLower(c.TestIDAttribute)
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}

// FileLoader resolves file:// URLs and bare paths from the local filesystem.
func FileLoader(ctx context.Context, url string) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(url, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	return strings.NewReader(string(data)), nil
}

// MapLoader serves documents from memory, keyed by URL.
func MapLoader(docs map[string]string) Loader {
	return func(ctx context.Context, url string) (io.Reader, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, ok := docs[url]
		if !ok {
			return nil, fmt.Errorf("load %s: no such document", url)
		}
		return strings.NewReader(doc), nil
	}
}
