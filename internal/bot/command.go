// Package bot is the text front end: it parses chat commands into typed
// requests, dispatches them to the core services and renders plain-text
// replies. No business rules live here.
package bot

import (
	"strconv"
	"strings"

	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/tracking"
)

// Name is the canonical command name after alias resolution.
type Name string

const (
	CmdToggle   Name = "toggle"
	CmdStatus   Name = "status"
	CmdList     Name = "list"
	CmdEdit     Name = "edit"
	CmdDelete   Name = "delete"
	CmdSettings Name = "settings"
	CmdRegister Name = "register"
	CmdLogin    Name = "login"
	CmdGenerate Name = "generate"
)

// Command is one parsed chat message.
type Command struct {
	Name Name

	// Toggle
	Activity domain.ActivityState
	Spec     tracking.TimeSpec

	// Edit: 1-based index from the latest session; 0 means most recent.
	EditIndex int
	// Edit: "start" or "end", and the signed minute delta to apply.
	EditField        string
	EditDeltaMinutes int

	// Delete
	EntryID string

	// Settings: nil means "show current settings".
	Setting *SettingChange

	// Register
	Mnemonic string
}

// SettingChange is one settings mutation. Exactly one field group is set.
type SettingChange struct {
	Key string // utc | lunch | target | office | cap | threshold

	// utc
	OffsetMinutes int

	// lunch; Off clears the reminder
	Hour, Minute int
	Off          bool

	// target/office/cap/threshold
	Hours    float64
	Activity domain.ActivityState // cap only
}

// Parse turns a raw chat message into a typed command. A leading slash
// is accepted so native bot commands and bare words parse alike.
func Parse(text string) (*Command, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return nil, domain.E(domain.KindInvalidRequest, "empty command")
	}
	head := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	switch head {
	case "commute", "c":
		return parseToggle(domain.StateCommuting, args)
	case "work", "w":
		return parseToggle(domain.StateWorking, args)
	case "lunch", "l":
		return parseToggle(domain.StateLunch, args)
	case "status", "s":
		return requireNoArgs(CmdStatus, args)
	case "list":
		return requireNoArgs(CmdList, args)
	case "edit":
		return parseEdit(args)
	case "delete":
		if len(args) != 1 {
			return nil, domain.E(domain.KindInvalidRequest, "usage: delete <entry id>")
		}
		return &Command{Name: CmdDelete, EntryID: args[0]}, nil
	case "settings":
		return parseSettings(args)
	case "register":
		if len(args) == 0 {
			return nil, domain.E(domain.KindInvalidRequest, "usage: register <24 words>")
		}
		return &Command{Name: CmdRegister, Mnemonic: strings.Join(args, " ")}, nil
	case "login", "lo":
		return requireNoArgs(CmdLogin, args)
	case "generate":
		return requireNoArgs(CmdGenerate, args)
	}
	return nil, domain.E(domain.KindInvalidRequest, "unknown command %q", head)
}

func requireNoArgs(name Name, args []string) (*Command, error) {
	if len(args) != 0 {
		return nil, domain.E(domain.KindInvalidRequest, "%s takes no arguments", name)
	}
	return &Command{Name: name}, nil
}

// parseToggle reads at most one time qualifier: "-m N", "+m N" or "HH:MM".
func parseToggle(state domain.ActivityState, args []string) (*Command, error) {
	cmd := &Command{Name: CmdToggle, Activity: state}
	switch len(args) {
	case 0:
		return cmd, nil
	case 1:
		if !strings.Contains(args[0], ":") {
			return nil, domain.E(domain.KindInvalidRequest, "unrecognized time qualifier %q", args[0])
		}
		cmd.Spec.LocalClock = args[0]
		return cmd, nil
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return nil, domain.E(domain.KindInvalidRequest, "minutes must be a non-negative number, got %q", args[1])
		}
		switch args[0] {
		case "-m":
			n = -n
		case "+m":
		default:
			return nil, domain.E(domain.KindInvalidRequest, "unrecognized time qualifier %q", args[0])
		}
		cmd.Spec.OffsetMinutes = &n
		return cmd, nil
	}
	return nil, domain.E(domain.KindInvalidRequest, "at most one time qualifier may be given")
}

// parseEdit reads "edit [N] <start|end> <-m|+m> <minutes>". N defaults to
// the most recent session.
func parseEdit(args []string) (*Command, error) {
	cmd := &Command{Name: CmdEdit}

	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			if n < 1 {
				return nil, domain.E(domain.KindInvalidRequest, "edit index starts at 1")
			}
			cmd.EditIndex = n
			args = args[1:]
		}
	}
	if len(args) != 3 {
		return nil, domain.E(domain.KindInvalidRequest, "usage: edit [N] start|end -m|+m <minutes>")
	}

	switch args[0] {
	case "start", "end":
		cmd.EditField = args[0]
	default:
		return nil, domain.E(domain.KindInvalidRequest, "edit field must be start or end, got %q", args[0])
	}

	n, err := strconv.Atoi(args[2])
	if err != nil || n < 0 {
		return nil, domain.E(domain.KindInvalidRequest, "minutes must be a non-negative number, got %q", args[2])
	}
	switch args[1] {
	case "-m":
		n = -n
	case "+m":
	default:
		return nil, domain.E(domain.KindInvalidRequest, "unrecognized qualifier %q", args[1])
	}
	cmd.EditDeltaMinutes = n
	return cmd, nil
}

func parseSettings(args []string) (*Command, error) {
	if len(args) == 0 {
		return &Command{Name: CmdSettings}, nil
	}
	change := &SettingChange{Key: strings.ToLower(args[0])}
	cmd := &Command{Name: CmdSettings, Setting: change}
	args = args[1:]

	switch change.Key {
	case "utc":
		if len(args) != 1 {
			return nil, domain.E(domain.KindInvalidRequest, "usage: settings utc <±hours>")
		}
		hours, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, domain.E(domain.KindInvalidRequest, "invalid offset %q", args[0])
		}
		change.OffsetMinutes = int(hours * 60)
		return cmd, nil

	case "lunch":
		if len(args) != 1 {
			return nil, domain.E(domain.KindInvalidRequest, "usage: settings lunch <HH:MM|off>")
		}
		if strings.EqualFold(args[0], "off") {
			change.Off = true
			return cmd, nil
		}
		h, m, err := domain.ParseClock(args[0])
		if err != nil {
			return nil, err
		}
		change.Hour, change.Minute = h, m
		return cmd, nil

	case "target", "office", "threshold":
		if len(args) != 1 {
			return nil, domain.E(domain.KindInvalidRequest, "usage: settings %s <hours|off>", change.Key)
		}
		return parseHoursOrOff(cmd, change, args[0])

	case "cap":
		if len(args) != 2 {
			return nil, domain.E(domain.KindInvalidRequest, "usage: settings cap <work|commute|lunch> <hours|off>")
		}
		switch args[0] {
		case "work":
			change.Activity = domain.StateWorking
		case "commute":
			change.Activity = domain.StateCommuting
		case "lunch":
			change.Activity = domain.StateLunch
		default:
			return nil, domain.E(domain.KindInvalidRequest, "unknown cap %q", args[0])
		}
		return parseHoursOrOff(cmd, change, args[1])
	}
	return nil, domain.E(domain.KindInvalidRequest, "unknown setting %q", change.Key)
}

func parseHoursOrOff(cmd *Command, change *SettingChange, arg string) (*Command, error) {
	if strings.EqualFold(arg, "off") {
		change.Off = true
		return cmd, nil
	}
	hours, err := strconv.ParseFloat(arg, 64)
	if err != nil || hours <= 0 {
		return nil, domain.E(domain.KindInvalidRequest, "hours must be a positive number, got %q", arg)
	}
	change.Hours = hours
	return cmd, nil
}
