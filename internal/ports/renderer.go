package ports

import (
	"github.com/betbot/tradedash/internal/domain"
)

// Renderer is the presentation surface driven by the coordinator.
//
// Calls are made from the coordinator goroutine after each state change and
// must not block or call back into the coordinator synchronously. Slices are
// owned by the renderer after the call.
type Renderer interface {
	// ShowLogin switches to the login surface. reason is empty on a plain logout.
	ShowLogin(reason string)
	ShowDashboard(identity domain.Identity)
	// RenderQuotes receives quotes sorted ascending by symbol.
	RenderQuotes(quotes []domain.Quote)
	// RenderOrders receives orders newest first.
	RenderOrders(orders []domain.Order)
	RenderStreamState(state string)
	// ShowMessage displays a transient user-facing message (order rejection, network failure).
	ShowMessage(msg string)
}

// NopRenderer ignores every call.
type NopRenderer struct{}

func (NopRenderer) ShowLogin(string)              {}
func (NopRenderer) ShowDashboard(domain.Identity) {}
func (NopRenderer) RenderQuotes([]domain.Quote)   {}
func (NopRenderer) RenderOrders([]domain.Order)   {}
func (NopRenderer) RenderStreamState(string)      {}
func (NopRenderer) ShowMessage(string)            {}

var _ Renderer = NopRenderer{}
