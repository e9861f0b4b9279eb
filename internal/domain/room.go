package domain

import "time"

type RoomType string

const (
	RoomTypeDirect       RoomType = "direct"
	RoomTypeGroup        RoomType = "group"
	RoomTypeChannel      RoomType = "channel"
	RoomTypeDepartment   RoomType = "department"
	RoomTypeTeam         RoomType = "team"
	RoomTypeAnnouncement RoomType = "announcement"
)

// Room is the realtime view of a chat.
type Room struct {
	ID            string
	Name          string
	Type          RoomType
	IsPrivate     bool
	IsArchived    bool
	DepartmentID  string
	TeamID        string
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// OpenToDepartment reports whether department members may join without an
// explicit membership row.
func (r *Room) OpenToDepartment() bool {
	return r.Type == RoomTypeDepartment && !r.IsPrivate && r.DepartmentID != ""
}

// OpenToTeam is the team counterpart of OpenToDepartment.
func (r *Room) OpenToTeam() bool {
	return r.Type == RoomTypeTeam && !r.IsPrivate && r.TeamID != ""
}
