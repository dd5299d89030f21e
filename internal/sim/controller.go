package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/rbright/merion/internal/protocol"
)

// Property is one addressable controller function with its limits.
type Property struct {
	Value    string
	LimitMin string
	LimitMax string
}

// Controller is an in-memory property table that answers state, get, set and propget.
type Controller struct {
	mu         sync.Mutex
	state      int
	properties map[string]Property
	commands   []string
}

// NewController seeds the diode pulse width the way a freshly powered laser reports it.
func NewController() *Controller {
	return &Controller{
		state: 0x00F2,
		properties: map[string]Property{
			"/osc/diode/cpw": {Value: "120", LimitMin: "10", LimitMax: "250"},
		},
	}
}

// SetState changes the bits reported for the state alias.
func (c *Controller) SetState(state int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// Define adds or replaces a property.
func (c *Controller) Define(path string, p Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[path] = p
}

// Value returns the current value at path.
func (c *Controller) Value(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.properties[path].Value
}

// Commands returns every line received so far.
func (c *Controller) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func (c *Controller) Handle(_ context.Context, line string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, line)

	cmd, err := protocol.ParseLine(line)
	if err != nil {
		return "ERROR " + err.Error()
	}
	arg, _ := cmd.Value()

	if cmd.Kind() == protocol.KindAlias {
		if cmd.Name() == "state" {
			return fmt.Sprintf("%04X", c.state)
		}
		return "ERROR unknown alias " + cmd.Name()
	}

	prop, ok := c.properties[cmd.Path()]
	if !ok {
		return "ERROR unknown path " + cmd.Path()
	}

	switch cmd.Name() {
	case "get":
		return prop.Value
	case "set":
		prop.Value = arg
		c.properties[cmd.Path()] = prop
		return ""
	case "propget":
		switch arg {
		case "limitmax":
			return prop.LimitMax
		case "limitmin":
			return prop.LimitMin
		default:
			return "ERROR unknown property " + arg
		}
	default:
		return "ERROR unknown verb " + cmd.Name()
	}
}
