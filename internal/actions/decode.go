package actions

import (
	"strings"

	"github.com/m3rciful/mebelbot/internal/leads"
	"github.com/m3rciful/mebelbot/internal/leadview"
)

// Command is a decoded operator button press.
type Command interface{ command() }

// ContactKind tells which contact a reveal or confirmation refers to.
type ContactKind string

const (
	ContactCall    ContactKind = "call"
	ContactMessage ContactKind = "message"
)

// MenuTarget names a read-only operator view.
type MenuTarget string

const (
	MenuMain       MenuTarget = "main"
	MenuStats      MenuTarget = "stats"
	MenuNew        MenuTarget = "new"
	MenuInProgress MenuTarget = "in_progress"
	MenuAll        MenuTarget = "all"
	MenuHelp       MenuTarget = "help"
)

type (
	// StatusChange moves a lead to To.
	StatusChange struct {
		LeadID string
		To     leads.Status
	}
	// ContactReveal shows contact details and asks for confirmation.
	ContactReveal struct {
		LeadID string
		Kind   ContactKind
	}
	// ContactConfirm logs that the contact happened.
	ContactConfirm struct {
		LeadID string
		Kind   ContactKind
	}
	// Delete asks for deletion confirmation.
	Delete struct{ LeadID string }
	// DeleteConfirm removes the lead.
	DeleteConfirm struct{ LeadID string }
	// Back leaves a sub-prompt and shows the lead card again.
	Back struct{ LeadID string }
	// Show opens the lead card, e.g. from a list.
	Show struct{ LeadID string }
	// MenuNav renders an aggregate view.
	MenuNav struct{ Target MenuTarget }
	// Unknown is anything this router does not implement.
	Unknown struct{ Key string }
)

func (StatusChange) command()   {}
func (ContactReveal) command()  {}
func (ContactConfirm) command() {}
func (Delete) command()         {}
func (DeleteConfirm) command()  {}
func (Back) command()           {}
func (Show) command()           {}
func (MenuNav) command()        {}
func (Unknown) command()        {}

var statusKeys = map[string]leads.Status{
	leadview.KeyDone:          leads.StatusProcessed,
	leadview.KeyInProgress:    leads.StatusInProgress,
	leadview.KeyCallCompleted: leads.StatusCallCompleted,
}

var menuKeys = map[string]MenuTarget{
	leadview.KeyMenuMain:       MenuMain,
	leadview.KeyMenuStats:      MenuStats,
	leadview.KeyMenuNew:        MenuNew,
	leadview.KeyMenuInProgress: MenuInProgress,
	leadview.KeyMenuAll:        MenuAll,
	leadview.KeyMenuHelp:       MenuHelp,
}

// Decode maps a callback key and payload to a Command. The payload is the
// lead id taken verbatim; it is never split.
func Decode(key, payload string) Command {
	key = strings.TrimSpace(key)
	if target, ok := menuKeys[key]; ok {
		return MenuNav{Target: target}
	}
	id := strings.TrimSpace(payload)
	if !strings.HasPrefix(key, leadview.LeadPrefix) || id == "" {
		return Unknown{Key: key}
	}
	if to, ok := statusKeys[key]; ok {
		return StatusChange{LeadID: id, To: to}
	}
	switch key {
	case leadview.KeyCall:
		return ContactReveal{LeadID: id, Kind: ContactCall}
	case leadview.KeyMessage:
		return ContactReveal{LeadID: id, Kind: ContactMessage}
	case leadview.KeyCallOK:
		return ContactConfirm{LeadID: id, Kind: ContactCall}
	case leadview.KeyMessageOK:
		return ContactConfirm{LeadID: id, Kind: ContactMessage}
	case leadview.KeyDelete:
		return Delete{LeadID: id}
	case leadview.KeyDeleteOK:
		return DeleteConfirm{LeadID: id}
	case leadview.KeyBack:
		return Back{LeadID: id}
	case leadview.KeyShow:
		return Show{LeadID: id}
	}
	return Unknown{Key: key}
}
