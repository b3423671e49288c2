// Package history persists the conversation as an ordered list of turns.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/normanking/veriflow/internal/logging"
)

// DefaultKey is the storage key the conversation lives under.
const DefaultKey = "veriAkisiChatHistory"

// WelcomeMessage greets the user on a fresh or unreadable history.
const WelcomeMessage = "Hello! I'm VeriFlow. How can I help you analyze your product data? For example, ask 'Which category has the most stock?' or 'Show the 3 most expensive products'."

var (
	// ErrNotFound is returned when no history has been saved yet.
	ErrNotFound = errors.New("history not found")
	// ErrCorrupt is returned when saved history cannot be decoded.
	ErrCorrupt = errors.New("history corrupt")
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot || r == RoleSystem
}

// Turn is one message in the conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Welcome returns a history holding only the greeting.
func Welcome() []Turn {
	return []Turn{{Role: RoleBot, Content: WelcomeMessage}}
}

// Store persists the conversation
type Store interface {
	Load(ctx context.Context) ([]Turn, error)
	Save(ctx context.Context, turns []Turn) error
	Close() error
}

// Encode serializes turns as a JSON array
func Encode(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(turns)
}

// Decode parses a JSON array of turns. Unknown roles count as corruption.
func Decode(raw []byte) ([]Turn, error) {
	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if turns == nil {
		return nil, fmt.Errorf("%w: not an array", ErrCorrupt)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("%w: turn %d has role %q", ErrCorrupt, i, t.Role)
		}
	}
	return turns, nil
}

// LoadOrWelcome loads the saved history, falling back to the greeting when nothing
// was saved or the saved value cannot be read.
func LoadOrWelcome(ctx context.Context, store Store, log *logging.Logger) []Turn {
	if log == nil {
		log = logging.NewNop()
	}
	turns, err := store.Load(ctx)
	switch {
	case err == nil:
		log.Debug("history", "Loaded chat history", map[string]interface{}{"turns": len(turns)})
		return turns
	case errors.Is(err, ErrNotFound):
		return Welcome()
	default:
		log.Error("history", "Failed to load chat history", err, nil)
		return Welcome()
	}
}
