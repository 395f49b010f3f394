package refresh

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/blockedby/chanscope/internal/models"
)

// StateReader loads refresh bookkeeping of a chat.
type StateReader interface {
	ForChat(ctx context.Context, chatID int64) (map[string]models.RefreshState, error)
}

// TrackerConfig controls staleness decisions.
type TrackerConfig struct {
	// TTL <= 0 disables periodic refresh: only never-fetched resources are due.
	TTL   time.Duration
	Force bool
	Only  []string
	Skip  []string
}

// Tracker decides whether a sub-resource fetch is due.
type Tracker struct {
	cfg    TrackerConfig
	states StateReader
	now    func() time.Time
}

// NewTracker creates a tracker reading state from states.
func NewTracker(cfg TrackerConfig, states StateReader) *Tracker {
	return &Tracker{cfg: cfg, states: states, now: time.Now}
}

// TTLEnabled reports whether periodic refresh is on.
func (t *Tracker) TTLEnabled() bool {
	return t.cfg.TTL > 0
}

// InScope applies the allow and deny lists.
func (t *Tracker) InScope(resource string) bool {
	if len(t.cfg.Only) > 0 && !containsFold(t.cfg.Only, resource) {
		return false
	}
	if containsFold(t.cfg.Skip, resource) {
		return false
	}
	return true
}

// Due decides from already loaded state rows.
func (t *Tracker) Due(states map[string]models.RefreshState, resource string) bool {
	if t.cfg.Force {
		return true
	}
	if !t.InScope(resource) {
		return false
	}
	st, ok := states[resource]
	if !ok || st.LastSuccessAt == nil {
		return true
	}
	if t.cfg.TTL <= 0 {
		return false
	}
	return t.now().Sub(*st.LastSuccessAt) > t.cfg.TTL
}

// IsDue decides whether resource of chatID should be fetched.
func (t *Tracker) IsDue(ctx context.Context, chatID int64, resource string) (bool, error) {
	states, err := t.states.ForChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	return t.Due(states, resource), nil
}

// Fresh reports whether every in-scope resource is not due. It is false when
// the lists leave nothing to check.
func (t *Tracker) Fresh(states map[string]models.RefreshState, resources []string) bool {
	checked := 0
	for _, r := range resources {
		if !t.InScope(r) {
			continue
		}
		checked++
		if t.Due(states, r) {
			return false
		}
	}
	return checked > 0
}

// AllFresh is Fresh over the stored state of chatID.
func (t *Tracker) AllFresh(ctx context.Context, chatID int64, resources []string) (bool, error) {
	states, err := t.states.ForChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	return t.Fresh(states, resources), nil
}

// Resources lists the sub-resources that apply to a chat.
func Resources(isSupergroup bool) []string {
	if isSupergroup {
		return []string{ResourceSupergroup, ResourceFullInfo, ResourceHistory, ResourceComments, ResourceSimilar}
	}
	return []string{ResourceHistory, ResourceComments, ResourceSimilar}
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), s)
	})
}
