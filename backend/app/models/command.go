package models

import "time"

type CommandStatus string

const (
	CommandPending CommandStatus = "pending"
	CommandRunning CommandStatus = "running"
	CommandSuccess CommandStatus = "success"
	CommandFailed  CommandStatus = "failed"
)

func (s CommandStatus) Valid() bool {
	switch s {
	case CommandPending, CommandRunning, CommandSuccess, CommandFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s CommandStatus) Terminal() bool { return s == CommandSuccess || s == CommandFailed }

func (s CommandStatus) rank() int {
	switch s {
	case CommandPending:
		return 0
	case CommandRunning:
		return 1
	case CommandSuccess, CommandFailed:
		return 2
	}
	return -1
}

// CanMoveTo enforces pending -> running -> {success, failed}. Re-reporting
// running on a running command is allowed so devices can attach progress text.
func (s CommandStatus) CanMoveTo(next CommandStatus) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank() && next != CommandPending
}

type CommandType string

const (
	CommandInstall     CommandType = "install"
	CommandUpdate      CommandType = "update"
	CommandReboot      CommandType = "reboot"
	CommandApplyPolicy CommandType = "apply-policy"
)

func (t CommandType) Valid() bool {
	switch t {
	case CommandInstall, CommandUpdate, CommandReboot, CommandApplyPolicy:
		return true
	}
	return false
}

// Command is one unit of remote work for a device. Rows are never deleted.
type Command struct {
	ID            uint          `gorm:"primaryKey"`
	DeviceID      string        `gorm:"size:191;not null;index:idx_commands_claim,priority:1"`
	Type          CommandType   `gorm:"size:32;not null"`
	Payload       string        `gorm:"type:text"` // JSON
	Status        CommandStatus `gorm:"size:16;not null;index:idx_commands_claim,priority:2"`
	CreatedAt     time.Time     `gorm:"index:idx_commands_claim,priority:3"`
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	ResultMessage *string `gorm:"size:1024"`
	ResultCode    *int
}
