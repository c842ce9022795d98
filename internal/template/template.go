/*
Copyright 2021 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package template evaluates a text template against a context mapping
// (spec.md §4.1, §6). The template language itself is explicitly out of
// scope per spec.md §1 ("any Liquid-compatible text templating engine
// satisfies the contract"); see DESIGN.md for why text/template is the
// concrete choice here.
package template

import (
	"bytes"
	"fmt"
	"text/template"
)

// Error wraps a malformed template or a missing context variable,
// surfaced to callers as spec.md §7's TemplateError.
type Error struct {
	cause error
}

func (e *Error) Error() string { return fmt.Sprintf("template: %v", e.cause) }
func (e *Error) Unwrap() error { return e.cause }

// Context is the closed set of keys a rendered manifest template may
// reference (spec.md §6). Modeled as an explicit record rather than an
// open bag so the contract is enforceable at compile time (spec.md §9).
type Context struct {
	Project            string
	ProjectHeirarchy   map[string]any // spelling preserved: external template contract.
	Parameters         map[string]string
	ParameterOrigins   map[string]string
	Debug              bool
}

// asMap exposes Context under the exact key names the template contract
// promises (spec.md §6), since Go struct field names can't carry the
// misspelled "project_heirarchy" key directly.
func (c Context) asMap() map[string]any {
	return map[string]any{
		"project":            c.Project,
		"project_heirarchy":  c.ProjectHeirarchy,
		"parameters":         c.Parameters,
		"parameter_origins":  c.ParameterOrigins,
		"debug":              c.Debug,
	}
}

// Renderer evaluates a template string against a Context. Pure function:
// no I/O, no mutation of its inputs.
type Renderer interface {
	Render(text string, ctx Context) (string, error)
}

// TextRenderer implements Renderer with the standard library's
// text/template engine. See package doc for why this is the concrete
// choice behind the Renderer contract.
type TextRenderer struct{}

// NewTextRenderer returns the default Renderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (TextRenderer) Render(text string, ctx Context) (string, error) {
	if text == "" {
		return "", nil
	}

	tmpl, err := template.New("manifest").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", &Error{cause: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx.asMap()); err != nil {
		return "", &Error{cause: err}
	}

	return buf.String(), nil
}
