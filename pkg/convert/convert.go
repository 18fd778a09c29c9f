package convert

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/curate/pkg/frontmatter"
	"github.com/jingkaihe/curate/pkg/logger"
)

// Converter applies frontmatter rules and body rewrites to definitions
type Converter struct {
	prefixes  map[string]string
	bodyRules []bodyRule
}

// Option configures a Converter
type Option func(*Converter) error

// WithPrefixReplacement adds a namespace prefix rewrite applied to bodies
// in addition to DefaultPrefixReplacements. A target that contains its own
// source is rejected because a second conversion would rewrite it again.
func WithPrefixReplacement(from, to string) Option {
	return func(c *Converter) error {
		if from == "" {
			return errors.New("prefix replacement source cannot be empty")
		}
		if to != from && strings.Contains(to, from) {
			return errors.Errorf("prefix replacement %q -> %q is not idempotent, the target contains the source", from, to)
		}
		c.prefixes[from] = to
		return nil
	}
}

// WithPrefixReplacements adds several namespace prefix rewrites
func WithPrefixReplacements(prefixes map[string]string) Option {
	return func(c *Converter) error {
		for from, to := range prefixes {
			if err := WithPrefixReplacement(from, to)(c); err != nil {
				return err
			}
		}
		return nil
	}
}

// New creates a Converter
func New(opts ...Option) (*Converter, error) {
	c := &Converter{prefixes: make(map[string]string, len(DefaultPrefixReplacements))}
	for from, to := range DefaultPrefixReplacements {
		c.prefixes[from] = to
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "failed to apply converter option")
		}
	}
	c.bodyRules = buildBodyRules(c.prefixes)
	return c, nil
}

// ConvertContent converts a single document. Documents without
// frontmatter, or with frontmatter that fails to parse, only get the body
// rewrite applied to their full text.
func (c *Converter) ConvertContent(ctx context.Context, content string, opts Options) (string, error) {
	if _, err := ParseKind(string(opts.Kind)); err != nil {
		return "", err
	}

	doc := frontmatter.Parse(content)
	if doc.ParseError {
		logger.G(ctx).WithError(doc.Err).WithField("source", opts.Source).
			Warn("frontmatter could not be parsed, converting body only")
	}
	if !doc.HadFrontmatter || doc.ParseError {
		return c.TransformBody(content, opts), nil
	}

	fm := c.MapFrontmatter(doc.Frontmatter, opts)
	header, err := frontmatter.Format(fm)
	if err != nil {
		return "", errors.Wrap(err, "failed to format converted frontmatter")
	}
	return header + c.TransformBody(doc.Body, opts), nil
}

// MapFrontmatter applies the field rules for opts.Kind and returns a new
// metadata value; the input is not modified.
func (c *Converter) MapFrontmatter(fm *frontmatter.Metadata, opts Options) *frontmatter.Metadata {
	return applyRules(fm, opts)
}

// TransformBody rewrites tool names, config paths and namespace prefixes
// unless opts.SkipBodyTransform is set.
func (c *Converter) TransformBody(body string, opts Options) string {
	if opts.SkipBodyTransform {
		return body
	}
	return transformBody(body, c.bodyRules)
}
