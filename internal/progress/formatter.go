package progress

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

func formatCounter(number, total int) string {
	return fmt.Sprintf("[%d/%d]", number, total)
}

func stepMessage(step Step, action string) string {
	return fmt.Sprintf("%s %s %s", formatCounter(step.Number, step.Total), action, step.Name)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func paint(mark string, enabled bool, attr color.Attribute) string {
	if !enabled {
		return mark
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(mark)
}
