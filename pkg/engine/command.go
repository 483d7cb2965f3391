// Package engine assembles argv/env for the external snapshot engine
// process and drives it, treating the binary as an opaque child process
// with a JSON/CLI contract (spec §4.1, §6). It owns no knowledge of the
// engine's internals, only of its command-line grammar.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/auriora/timelocker/pkg/errs"
)

// ParameterStyle controls how a staged parameter is rendered on argv.
type ParameterStyle string

const (
	StyleSeparate   ParameterStyle = "separate"    // --name value
	StyleJoined     ParameterStyle = "joined"      // --name=value
	StylePositional ParameterStyle = "positional"  // value
	StyleSingleDash ParameterStyle = "single_dash" // -name value
	StyleDoubleDash ParameterStyle = "double_dash" // --name value
)

// Parameter describes one named flag a CommandDefinition accepts.
type Parameter struct {
	Name        string
	Style       ParameterStyle
	ShortName   string
	ShortStyle  ParameterStyle
	Required    bool
	Position    *int // nil sorts last, stable among unset
	Description string
}

// valueRequired reports whether the parameter's style demands a value
// (joined and positional styles always do; the rest may be bare flags).
func (p Parameter) valueRequired() bool {
	return p.Style == StyleJoined || p.Style == StylePositional
}

// formatName renders the flag token (without its value) for this
// parameter, honoring the short form when requested and available.
func (p Parameter) formatName(useShort bool) (string, ParameterStyle) {
	name, style := p.Name, p.Style
	if useShort && p.ShortName != "" {
		name = p.ShortName
		if p.ShortStyle != "" {
			style = p.ShortStyle
		} else {
			style = StyleSingleDash
		}
	}

	switch style {
	case StylePositional:
		return name, style
	case StyleSingleDash:
		return "-" + name, style
	case StyleSeparate:
		if useShort {
			return "-" + name, style
		}
		return "--" + name, style
	default: // StyleDoubleDash, StyleJoined, and anything unrecognized
		return "--" + name, style
	}
}

// CommandDefinition is the typed schema a Builder is built from: a name
// (the subcommand or executable token), its parameters, any nested
// subcommands, and an ordered synopsis for positional values.
type CommandDefinition struct {
	Name             string
	Parameters       map[string]*Parameter
	Subcommands      map[string]*CommandDefinition
	DefaultParamStyle ParameterStyle
	// SynopsisParams lists positional placeholder names in declared
	// order; a name wrapped in brackets (e.g. "[snapshot-id]") is optional.
	SynopsisParams []string
}

// Builder stages parameter values and a subcommand chain against a
// CommandDefinition, then renders them into an argv list.
type Builder struct {
	root    *CommandDefinition
	current *CommandDefinition
	staged  map[string]any
	chain   []string
}

// NewBuilder creates a Builder rooted at def. def.Name becomes argv[0].
func NewBuilder(def *CommandDefinition) *Builder {
	if def.Parameters == nil {
		def.Parameters = map[string]*Parameter{}
	}
	if def.Subcommands == nil {
		def.Subcommands = map[string]*CommandDefinition{}
	}
	return &Builder{
		root:    def,
		current: def,
		staged:  map[string]any{},
		chain:   []string{def.Name},
	}
}

// Param stages value for the named parameter. value may be a scalar or
// a slice; a nil value is valid only for flag-style parameters that
// don't require one.
func (b *Builder) Param(name string, value any) error {
	param, ok := b.current.Parameters[name]
	if !ok {
		return errs.Newf(errs.KindValidation, "parameter %q is not defined in command definition", name)
	}
	if value == nil && param.valueRequired() {
		return errs.Newf(errs.KindValidation, "parameter %q requires a value", name)
	}
	b.staged[name] = value
	return nil
}

// Command descends into a named subcommand, appending it to the chain.
func (b *Builder) Command(name string) error {
	sub, ok := b.current.Subcommands[name]
	if !ok {
		return errs.Newf(errs.KindValidation, "unknown subcommand: %s", name)
	}
	b.current = sub
	b.chain = append(b.chain, name)
	return nil
}

// Clear resets the builder to its freshly-constructed state.
func (b *Builder) Clear() {
	b.current = b.root
	b.staged = map[string]any{}
	b.chain = []string{b.root.Name}
}

// Build renders the staged state into an argv list: command chain
// first, then staged parameters ordered by Position (unset sorts last,
// stable among unset), then declared synopsis values.
func (b *Builder) Build(useShortForm bool, synopsisValues map[string]string) ([]string, error) {
	result := append([]string{}, b.chain...)

	params := make([]*Parameter, 0, len(b.current.Parameters))
	for _, p := range b.current.Parameters {
		params = append(params, p)
	}
	sort.SliceStable(params, func(i, j int) bool {
		pi, pj := params[i].Position, params[j].Position
		switch {
		case pi == nil && pj == nil:
			return false
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi < *pj
		}
	})

	var missing []string
	for _, p := range params {
		if p.Required {
			if _, staged := b.staged[p.Name]; !staged {
				missing = append(missing, p.Name)
			}
		}
	}
	if len(missing) > 0 {
		return nil, errs.Newf(errs.KindValidation, "missing required parameters: %s", strings.Join(missing, ", "))
	}

	for _, p := range params {
		value, staged := b.staged[p.Name]
		if !staged {
			continue
		}
		name, style := p.formatName(useShortForm)

		if list, isList := toStringList(value); isList {
			for _, item := range list {
				if style == StyleJoined {
					result = append(result, fmt.Sprintf("%s=%s", name, item))
				} else {
					result = append(result, name, item)
				}
			}
			continue
		}

		if value == nil {
			result = append(result, name)
			continue
		}
		rendered := fmt.Sprintf("%v", value)
		if style == StyleJoined {
			result = append(result, fmt.Sprintf("%s=%s", name, rendered))
		} else {
			result = append(result, name, rendered)
		}
	}

	for _, synopsisName := range b.current.SynopsisParams {
		optional := strings.HasPrefix(synopsisName, "[")
		bareName := strings.TrimRight(strings.Trim(synopsisName, "[]"), "...")
		if value, ok := synopsisValues[bareName]; ok {
			result = append(result, value)
			continue
		}
		if !optional {
			return nil, errs.Newf(errs.KindValidation, "missing required synopsis parameter: %s", bareName)
		}
	}

	return result, nil
}

// toStringList reports whether value is a slice and, if so, renders its
// elements as strings preserving order.
func toStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out, true
	default:
		return nil, false
	}
}
