package calls

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troikatech/callbridge/pkg/env"
	"github.com/troikatech/callbridge/pkg/utils"
)

const (
	roomPrefix        = "call_"
	randomAttempts    = 10
	randomNameLength  = 8
	fallbackLength    = 16
	collisionSuffixes = 4
)

// RoomLister lists the rooms that are currently live on the session-room
// gateway.
type RoomLister interface {
	ListRoomNames(ctx context.Context) ([]string, error)
}

// RoomNamer derives session-room names. With the caller strategy the name
// is predicted from the destination number so it matches what the gateway's
// dispatch rule assigns to the bridged call.
type RoomNamer struct {
	strategy    string
	lister      RoomLister
	store       Store
	listTimeout time.Duration
	logger      *zap.Logger

	now     func() time.Time
	randHex func(n int) string
}

// NewRoomNamer builds a namer. lister may be nil when no gateway is
// configured; only the store is then checked for collisions.
func NewRoomNamer(strategy string, lister RoomLister, store Store, listTimeout time.Duration, logger *zap.Logger) *RoomNamer {
	return &RoomNamer{
		strategy:    strategy,
		lister:      lister,
		store:       store,
		listTimeout: listTimeout,
		logger:      logger,
		now:         time.Now,
		randHex:     randomHex,
	}
}

// Predictive reports whether names are predicted from the caller.
func (n *RoomNamer) Predictive() bool {
	return n.strategy == env.RoomStrategyCaller
}

// Derive returns a room name that is neither live on the gateway nor
// reserved in the store at the time of the call. phone must be normalised.
func (n *RoomNamer) Derive(ctx context.Context, phone string) string {
	live := n.liveRooms(ctx)
	taken := func(name string) bool {
		return live[name] || n.store.RoomReserved(ctx, name)
	}

	if n.Predictive() {
		return n.deriveFromCaller(phone, taken)
	}
	return n.deriveRandom(taken)
}

func (n *RoomNamer) deriveRandom(taken func(string) bool) string {
	for i := 0; i < randomAttempts; i++ {
		name := roomPrefix + n.randHex(randomNameLength)
		if !taken(name) {
			return name
		}
	}
	n.logger.Warn("Random room names kept colliding, using long suffix",
		zap.Int("attempts", randomAttempts),
	)
	return roomPrefix + n.randHex(fallbackLength)
}

func (n *RoomNamer) deriveFromCaller(phone string, taken func(string) bool) string {
	base := PredictedRoomName(phone)
	if !taken(base) {
		return base
	}

	stamped := fmt.Sprintf("%s_%d", base, n.now().UnixMilli())
	if !taken(stamped) {
		return stamped
	}
	return stamped + "_" + n.randHex(collisionSuffixes)
}

// liveRooms fails open: an unreachable gateway yields an empty set.
func (n *RoomNamer) liveRooms(ctx context.Context) map[string]bool {
	live := map[string]bool{}
	if n.lister == nil {
		return live
	}

	ctx, cancel := context.WithTimeout(ctx, n.listTimeout)
	defer cancel()

	var names []string
	err := runBounded(ctx, func(ctx context.Context) error {
		var err error
		names, err = n.lister.ListRoomNames(ctx)
		return err
	})
	if err != nil {
		n.logger.Warn("Could not list live rooms, continuing without collision check",
			zap.Error(err),
		)
		return live
	}
	for _, name := range names {
		live[name] = true
	}
	return live
}

// PredictedRoomName is the name the dispatch rule assigns to a bridged call
// from phone: call_ followed by its digits.
func PredictedRoomName(phone string) string {
	return roomPrefix + utils.DigitsOnly(phone)
}

// callerPrefix returns the call_<digits> head of a room name, or "" if the
// name does not start with one.
func callerPrefix(name string) string {
	if !strings.HasPrefix(name, roomPrefix) {
		return ""
	}
	rest := name[len(roomPrefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return ""
	}
	return roomPrefix + rest[:end]
}

func randomHex(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}
