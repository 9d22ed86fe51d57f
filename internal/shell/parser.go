package shell

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one parsed input line. Lines that do not start with '.' are
// queries and have an empty Name.
type Command struct {
	Name string
	Args []string
	Line string
}

// Parse splits a dot-command into its name and arguments.
func Parse(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}
	if !strings.HasPrefix(line, ".") {
		return &Command{Line: line}, nil
	}
	parts := strings.Fields(line)
	return &Command{Name: strings.ToLower(parts[0]), Args: parts[1:], Line: line}, nil
}

// IsQuery reports whether the line is a query rather than a dot-command.
func (c *Command) IsQuery() bool { return c.Name == "" }

// Payload returns the unsplit text following the first n arguments, for
// commands whose last argument is JSON that may contain spaces.
func (c *Command) Payload(n int) (string, error) {
	rest := c.Line
	for i := 0; i <= n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			rest = ""
			break
		}
		rest = rest[j:]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", fmt.Errorf("%s: expected a payload after %d argument(s)", c.Name, n)
	}
	return rest, nil
}

// ValidateArgs checks that at least count arguments were given.
func ValidateArgs(cmd *Command, count int) error {
	if len(cmd.Args) < count {
		return fmt.Errorf("%s: expected %d argument(s), got %d", cmd.Name, count, len(cmd.Args))
	}
	return nil
}

// ParseLimit accepts a non-negative integer or "off".
func ParseLimit(s string) (int, error) {
	if strings.EqualFold(s, "off") {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer or off")
	}
	return n, nil
}
