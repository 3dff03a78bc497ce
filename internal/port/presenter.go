package port

import "github.com/rl1809/shop-stock/internal/core/domain"

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

type Notification struct {
	Message  string
	Severity Severity
}

// Presenter receives output from the core. Return values are never consulted.
type Presenter interface {
	Render(view domain.View)
	Notify(n Notification)
}
