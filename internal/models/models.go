package models

import (
	"time"
)

// User represents an account that can join channels and DJ.
type User struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	UserName    string `gorm:"uniqueIndex"`
	DisplayName string
	Email       string `gorm:"uniqueIndex"`
	Password    string
	Country     string        `gorm:"type:varchar(2)"`
	Settings    QueueSettings `gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QueueSettings controls how a user's stored stack is mutated after a play.
type QueueSettings struct {
	KeepPlayedTracks bool `json:"keep_played_tracks"`
}

// Name returns the display name, falling back to the user name.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.UserName
}

// Channel is the persisted mirror of a room. The coordinator owns the live
// state; this document trails it for reconnect and discovery reads.
type Channel struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Title        string         `gorm:"uniqueIndex"`
	Description  string         `gorm:"type:text"`
	Users        []string       `gorm:"type:jsonb;serializer:json"`
	DJs          []string       `gorm:"column:djs;type:jsonb;serializer:json"`
	NowPlaying   map[string]any `gorm:"type:jsonb;serializer:json"`
	LastPlayed   map[string]any `gorm:"type:jsonb;serializer:json"`
	LastfmConfig map[string]any `gorm:"type:jsonb;serializer:json"`
	LastTouched  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlayedTrack is one history entry: a finished or skipped play with its
// aggregated vote summary. Newest first, capped per channel.
type PlayedTrack struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	ChannelID  string `gorm:"type:uuid;index"`
	TrackID    string `gorm:"index"`
	URI        string
	Title      string
	Artists    []string `gorm:"type:jsonb;serializer:json"`
	Album      string
	AlbumArt   string
	DurationMS int64
	ISRC       string `gorm:"index"`
	DJID       string `gorm:"index"`
	Skipped    bool

	Dope       int
	Nope       int
	Star       int
	BoofStar   int
	VotedCount int
	Chat       int
	Listeners  int
	Score      int

	PlayedAt  time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Stack is a user's persisted track queue, sourced when the user DJs from a
// sleeping mobile client.
type Stack struct {
	ID          string   `gorm:"type:uuid;primaryKey"`
	UserID      string   `gorm:"type:uuid;index"`
	TrackIDs    []string `gorm:"type:jsonb;serializer:json"`
	ActiveQueue bool     `gorm:"index"`
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FirstPlay records the first time a track (by ISRC) was played anywhere.
type FirstPlay struct {
	ISRC      string `gorm:"primaryKey"`
	ChannelID string `gorm:"type:uuid"`
	UserID    string
	Listeners int
	Score     int
	CreatedAt time.Time
}

// CoinTransaction is one in-room currency grant.
type CoinTransaction struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"index"`
	Amount    int
	Reason    string `gorm:"type:varchar(32)"`
	CreatedAt time.Time
}

// AchievementEvent is a fire-and-forget achievement or vote-ledger record.
type AchievementEvent struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	UserID    string         `gorm:"index"`
	Name      string         `gorm:"type:varchar(32);index"`
	Detail    map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time
}
