// Package model はドメインモデルを定義する。
package model

import "time"

// Organization はテナント（事業者）を表す。
// ジョブ・クライアント・ユーザーはすべていずれかの組織に属する。
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// UserRole は組織内でのユーザー権限を表す。
type UserRole string

const (
	// UserRoleOwner は事業者オーナー。
	UserRoleOwner UserRole = "OWNER"
	// UserRoleStaff はオーナー配下のスタッフ。
	UserRoleStaff UserRole = "STAFF"
)

// User はオーナーポータルにログインする利用者を表す。
// パスワードは外部IdPが管理するため保持しない。
type User struct {
	ID        string
	OrgID     string
	Email     string
	Role      UserRole
	CreatedAt time.Time
}
