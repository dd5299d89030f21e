package protocol

import (
	"fmt"
	"strings"
)

// Kind distinguishes structured tree commands from one-word alias commands.
type Kind int

const (
	KindStructured Kind = iota
	KindAlias
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindAlias:
		return "alias"
	default:
		return "unknown"
	}
}

type optional struct {
	text string
	set  bool
}

func (o optional) nonEmpty() bool {
	return o.set && o.text != ""
}

// Command is one outbound controller command. Commands are values; the With* methods return copies.
//
// A structured command addresses /tree/branch/function under a verb and may carry either a parameter
// (property commands such as propget) or a value (set). When both are present the parameter wins.
// An alias command is a single word with an optional value.
//
// The wire format has no way to express an empty trailing argument, so a present-but-empty parameter or
// value encodes the same as an absent one. Path components are not validated: an empty tree yields a
// malformed line such as "get ///cpw".
type Command struct {
	kind      Kind
	verb      string
	tree      string
	branch    string
	function  string
	parameter optional
	value     optional
}

// Structured builds "<verb> /<tree>/<branch>/<function>".
func Structured(verb, tree, branch, function string) Command {
	return Command{kind: KindStructured, verb: verb, tree: tree, branch: branch, function: function}
}

// Alias builds a one-word shortcut command such as "state".
func Alias(name string) Command {
	return Command{kind: KindAlias, verb: name}
}

// WithParameter returns a copy carrying a property parameter. Alias commands ignore parameters.
func (c Command) WithParameter(parameter string) Command {
	c.parameter = optional{text: parameter, set: true}
	return c
}

// WithValue returns a copy carrying a value argument.
func (c Command) WithValue(value string) Command {
	c.value = optional{text: value, set: true}
	return c
}

func (c Command) Kind() Kind { return c.kind }

// Name returns the verb of a structured command or the alias word.
func (c Command) Name() string { return c.verb }

// Path returns "/tree/branch/function", or "" for alias commands.
func (c Command) Path() string {
	if c.kind != KindStructured {
		return ""
	}
	return "/" + c.tree + "/" + c.branch + "/" + c.function
}

func (c Command) Parameter() (string, bool) { return c.parameter.text, c.parameter.set }

func (c Command) Value() (string, bool) { return c.value.text, c.value.set }

// String renders the command line without the send terminator.
func (c Command) String() string {
	if c.kind == KindAlias {
		if c.value.nonEmpty() {
			return c.verb + " " + c.value.text
		}
		return c.verb
	}

	line := c.verb + " " + c.Path()
	switch {
	case c.parameter.nonEmpty():
		return line + " " + c.parameter.text
	case c.value.nonEmpty():
		return line + " " + c.value.text
	default:
		return line
	}
}

// Encode returns the exact bytes written to the wire, terminated by SendTerminator.
func (c Command) Encode() []byte {
	line := c.String()
	out := make([]byte, 0, len(line)+len(SendTerminator))
	out = append(out, line...)
	return append(out, SendTerminator...)
}

// EncodeStructured encodes a structured command where empty parameter or value means absent.
func EncodeStructured(verb, tree, branch, function, parameter, value string) []byte {
	cmd := Structured(verb, tree, branch, function)
	if parameter != "" {
		cmd = cmd.WithParameter(parameter)
	}
	if value != "" {
		cmd = cmd.WithValue(value)
	}
	return cmd.Encode()
}

// EncodeAlias encodes an alias command where an empty value means absent.
func EncodeAlias(name, value string) []byte {
	cmd := Alias(name)
	if value != "" {
		cmd = cmd.WithValue(value)
	}
	return cmd.Encode()
}

// ParseError reports a console line that cannot be turned into a Command.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Line, e.Reason)
}

// ParseLine turns a typed command line back into a Command.
//
// "<verb> /<tree>/<branch>/<function> [arg]" yields a structured command whose trailing text is carried as
// the value; both argument kinds occupy the same wire position. Anything else is an alias with an optional value.
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, &ParseError{Line: line, Reason: "empty line"}
	}

	if len(fields) >= 2 && strings.HasPrefix(fields[1], "/") {
		tree, branch, function, err := SplitPath(fields[1])
		if err != nil {
			return Command{}, &ParseError{Line: line, Reason: err.Error()}
		}
		cmd := Structured(fields[0], tree, branch, function)
		if len(fields) > 2 {
			cmd = cmd.WithValue(strings.Join(fields[2:], " "))
		}
		return cmd, nil
	}

	cmd := Alias(fields[0])
	if len(fields) > 1 {
		cmd = cmd.WithValue(strings.Join(fields[1:], " "))
	}
	return cmd, nil
}

// SplitPath splits "/tree/branch/function" into its three non-empty components.
func SplitPath(path string) (tree, branch, function string, err error) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("path %q must have the form /tree/branch/function", path)
	}
	for _, part := range parts {
		if part == "" {
			return "", "", "", fmt.Errorf("path %q has an empty component", path)
		}
	}
	return parts[0], parts[1], parts[2], nil
}
