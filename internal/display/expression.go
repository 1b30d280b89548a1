// Package display renders the assistant's face.
//
// The turn machine publishes a [Scene] (an [Expression] plus an optional
// caption) through [Animator.Show]; a single periodic task reads the current
// scene, draws both eyes with a [Renderer] and hands the resulting [Frame]
// to every configured [Output]. The scene is the only state shared with the
// turn machine and is swapped atomically, so Show never blocks capture.
package display

import (
	"context"
	"fmt"
	"strings"
)

// Expression is a named face state.
type Expression uint8

const (
	Neutral Expression = iota
	Listening
	Thinking
	Speaking
	Sleeping
)

var expressionNames = [...]string{
	Neutral:   "neutral",
	Listening: "listening",
	Thinking:  "thinking",
	Speaking:  "speaking",
	Sleeping:  "sleeping",
}

func (e Expression) String() string {
	if int(e) < len(expressionNames) {
		return expressionNames[e]
	}
	return fmt.Sprintf("Expression(%d)", e)
}

// ParseExpression returns the expression named s (case-insensitive).
func ParseExpression(s string) (Expression, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range expressionNames {
		if name == s {
			return Expression(i), nil
		}
	}
	return Neutral, fmt.Errorf("display: unknown expression %q", s)
}

// Scene is what the face should show: an expression and, optionally, a line
// of literal text.
type Scene struct {
	Expression Expression
	Caption    string
}

// Output receives rendered frames. Draw is only called from the animator's
// goroutine.
type Output interface {
	Draw(ctx context.Context, f Frame) error
}

// OutputFunc adapts a function to [Output].
type OutputFunc func(ctx context.Context, f Frame) error

// Draw calls fn.
func (fn OutputFunc) Draw(ctx context.Context, f Frame) error { return fn(ctx, f) }
