package views

import (
	"fmt"
	"strings"
	"sync"

	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

// View names the page section being shown.
type View string

const (
	ViewDashboard  View = "dashboard"
	ViewAnalytics  View = "analytics"
	ViewAutomation View = "automation"
	ViewSettings   View = "settings"
)

// Views lists the navigable sections in menu order.
var Views = []View{ViewDashboard, ViewAnalytics, ViewAutomation, ViewSettings}

// ParseView validates a view name.
func ParseView(name string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(name)))
	switch v {
	case ViewDashboard, ViewAnalytics, ViewAutomation, ViewSettings:
		return v, nil
	}
	return "", utils.NewValidationError("select view", fmt.Sprintf("Unknown view %q", name))
}

// State is a copy of the navigation state.
type State struct {
	ActiveView View
	Selected   *models.Indicator
}

// Controller holds the active view and the indicator open in the detail overlay.
// It never talks to the network or timers.
type Controller struct {
	mu       sync.Mutex
	active   View
	selected *models.Indicator
}

// NewController starts on the dashboard with nothing selected.
func NewController() *Controller {
	return &Controller{active: ViewDashboard}
}

// SetView switches sections. Unknown names leave the state unchanged.
func (c *Controller) SetView(name string) error {
	v, err := ParseView(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = v
	c.mu.Unlock()
	return nil
}

// Select opens the overlay on a copy of ind. The copy is not refreshed by later
// polls and stays until ClearSelection.
func (c *Controller) Select(ind models.Indicator) {
	cp := ind
	cp.Sources = append([]models.SourceVerdict(nil), ind.Sources...)
	cp.Tags = append([]string(nil), ind.Tags...)
	c.mu.Lock()
	c.selected = &cp
	c.mu.Unlock()
}

// SelectByKey selects the snapshot entry whose Key matches.
func (c *Controller) SelectByKey(snapshot []models.Indicator, key string) (models.Indicator, error) {
	for _, ind := range snapshot {
		if ind.Key() == key {
			c.Select(ind)
			return ind, nil
		}
	}
	return models.Indicator{}, utils.NewValidationError("select indicator", fmt.Sprintf("No indicator %q in the current list", key))
}

// ClearSelection closes the overlay.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selected = nil
	c.mu.Unlock()
}

// State returns a copy of the navigation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{ActiveView: c.active}
	if c.selected != nil {
		cp := *c.selected
		st.Selected = &cp
	}
	return st
}
