// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type TaskID string
type DedupKey string

// ForwardTarget addresses a forwarding destination as "<scheme>:<address>",
// e.g. "whatsapp:+15550001111" or "telegram:123456".
type ForwardTarget string

func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

func NewForwardTarget(scheme, address string) ForwardTarget {
	return ForwardTarget(scheme + ":" + address)
}

// Scheme returns the part before the first colon.
func (t ForwardTarget) Scheme() string {
	scheme, _, _ := strings.Cut(string(t), ":")
	return scheme
}

// Address returns the part after the first colon.
func (t ForwardTarget) Address() string {
	_, addr, _ := strings.Cut(string(t), ":")
	return addr
}
