package model

import "time"

type Heart struct {
	UserID    string    `db:"user_id" json:"userId"`
	MomentID  string    `db:"moment_id" json:"momentId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
