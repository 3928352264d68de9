package orders

import (
	"context"
	"strings"
)

type actionFunc func(context.Context, Event) error

// statuses that open dispatch and statuses that end it
var (
	readyStatuses  = []string{"ready_for_pickup", "awaiting_assignment"}
	closedStatuses = []string{"canceled", "cancelled", "deleted", "completed", "refunded"}
)

type actionFactory struct {
	byStatus map[string]actionFunc
}

func newActionFactory(onReady, onClosed actionFunc) *actionFactory {
	f := &actionFactory{byStatus: make(map[string]actionFunc, len(readyStatuses)+len(closedStatuses))}
	for _, s := range readyStatuses {
		f.byStatus[s] = onReady
	}
	for _, s := range closedStatuses {
		f.byStatus[s] = onClosed
	}
	return f
}

func (f *actionFactory) get(status string) (actionFunc, bool) {
	fn, ok := f.byStatus[strings.ToLower(strings.TrimSpace(status))]
	return fn, ok
}
