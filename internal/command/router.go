// Package command parses prefixed chat commands and dispatches them to
// registered handlers.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/memohai/playbot/internal/channel"
)

var (
	ErrDuplicateCommand = errors.New("command already registered")
	ErrInvalidCommand   = errors.New("invalid command")
)

// DefaultPrefixes are used when no prefixes are configured.
var DefaultPrefixes = []string{"."}

// Invocation is a parsed command line.
type Invocation struct {
	Prefix string
	Name   string
	Args   string
}

// Handler runs one command.
type Handler func(ctx context.Context, inv Invocation, msg channel.InboundMessage) error

// Command describes a routable command.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string
	Description string
	Handler     Handler
}

// Router matches message text against the configured prefixes.
type Router struct {
	prefixes []string
	primary  string

	mu       sync.RWMutex
	commands map[string]*Command
	names    map[string]*Command
}

// NewRouter creates a Router. Longer prefixes are matched first.
func NewRouter(prefixes []string) *Router {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultPrefixes...)
	}
	primary := cleaned[0]
	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	return &Router{
		prefixes: cleaned,
		primary:  primary,
		commands: map[string]*Command{},
		names:    map[string]*Command{},
	}
}

// Prefix returns the first configured prefix, used in help and usage text.
func (r *Router) Prefix() string {
	return r.primary
}

// Register adds cmd under its name and aliases.
func (r *Router) Register(cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || cmd.Handler == nil {
		return ErrInvalidCommand
	}
	keys := []string{name}
	for _, alias := range cmd.Aliases {
		if alias = strings.ToLower(strings.TrimSpace(alias)); alias != "" {
			keys = append(keys, alias)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if _, exists := r.commands[key]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, key)
		}
	}
	stored := cmd
	stored.Name = name
	for _, key := range keys {
		r.commands[key] = &stored
	}
	r.names[name] = &stored
	return nil
}

// Parse splits text into an invocation. It reports false when text does not
// start with a known prefix followed by a command word.
func (r *Router) Parse(text string) (Invocation, bool) {
	text = strings.TrimSpace(text)
	for _, prefix := range r.prefixes {
		if !strings.HasPrefix(text, prefix) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(text, prefix))
		if rest == "" {
			return Invocation{}, false
		}
		name, args, _ := strings.Cut(rest, " ")
		if idx := strings.IndexAny(name, "\n\t"); idx >= 0 {
			args = name[idx+1:] + " " + args
			name = name[:idx]
		}
		return Invocation{
			Prefix: prefix,
			Name:   strings.ToLower(name),
			Args:   strings.TrimSpace(args),
		}, true
	}
	return Invocation{}, false
}

// Dispatch runs the command named in msg. It reports whether a command matched.
func (r *Router) Dispatch(ctx context.Context, msg channel.InboundMessage) (bool, error) {
	inv, ok := r.Parse(msg.Message.PlainText())
	if !ok {
		return false, nil
	}
	r.mu.RLock()
	cmd := r.commands[inv.Name]
	r.mu.RUnlock()
	if cmd == nil {
		return false, nil
	}
	return true, cmd.Handler(ctx, inv, msg)
}

// Help lists registered commands sorted by name.
func (r *Router) Help() string {
	r.mu.RLock()
	cmds := make([]*Command, 0, len(r.names))
	for _, cmd := range r.names {
		cmds = append(cmds, cmd)
	}
	r.mu.RUnlock()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	prefix := r.Prefix()
	var b strings.Builder
	b.WriteString("📋 Commands:\n")
	for _, cmd := range cmds {
		usage := cmd.Usage
		if usage == "" {
			usage = cmd.Name
		}
		b.WriteString("• " + prefix + usage)
		if cmd.Description != "" {
			b.WriteString(" - " + cmd.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// PlayUsage is the hint sent when play is invoked without a query.
func PlayUsage(prefix string) string {
	return "🎵 Usage: " + prefix + "play <name or link>\nExample: " + prefix + "play bad bunny"
}
