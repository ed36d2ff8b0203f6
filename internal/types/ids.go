// README: Identifier and coordinate value objects shared by modules.
package types

import (
    "strings"

    "github.com/google/uuid"
)

type ID string

// NewID returns a 32-char lowercase hex identifier.
func NewID() ID {
    return ID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

type Point struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

func (p Point) IsZero() bool { return p.Lat == 0 && p.Lng == 0 }
