package domain

import (
	"regexp"
	"strings"
)

// Column groups tasks on a board, analogous to a lane.
type Column struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	OwnerID string `json:"userId"`

	// IsNew marks an entry appended by a create in this session. It is never persisted.
	IsNew bool `json:"isNew,omitempty"`
}

// Palette lists the colours offered by the column colour picker.
var Palette = []string{
	"#6B7280", // gray
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // yellow
	"#F97316", // orange
	"#EF4444", // red
	"#8B5CF6", // purple
	"#EC4899", // pink
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// NormalizeColumn trims the name, defaults the colour and validates both.
func NormalizeColumn(name, color string) (string, string, error) {
	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if name == "" {
		return "", "", Invalid("name", "column name is required")
	}
	if color == "" {
		color = Palette[0]
	}
	if !hexColor.MatchString(color) {
		return "", "", Invalid("color", "color must be a #RRGGBB value")
	}
	return name, strings.ToUpper(color), nil
}
