package kernel

import (
	"strings"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

const (
	basePriority = 5
	directBonus  = 2
	replyBonus   = 1
	urgencyBonus = 3
	maxPriority  = 10
	replyMarker  = "re:"
)

var urgencyMarkers = []string{"urgent", "important", "asap", "priority"}

// Priority derives an urgency score in [0,10] from message attributes.
// Direct messages, replies and urgency-marked subjects score higher.
func Priority(msg domain.Message) int {
	p := basePriority
	if len(msg.To) == 1 {
		p += directBonus
	}
	subject := strings.ToLower(msg.Subject)
	if strings.HasPrefix(subject, replyMarker) {
		p += replyBonus
	}
	for _, m := range urgencyMarkers {
		if strings.Contains(subject, m) {
			p += urgencyBonus
			break
		}
	}
	if p > maxPriority {
		p = maxPriority
	}
	return p
}
