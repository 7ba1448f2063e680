package auth

import (
	"fmt"

	"github.com/hitoshi/jobdesk/internal/model"
)

// ActorKind は操作主体の種別。Owner / Client / System の3種で閉じている。
type ActorKind int

const (
	// ActorOwner はセッションCookieで認証されたオーナー。
	ActorOwner ActorKind = iota + 1
	// ActorClient はポータルトークンで認証された顧客。
	ActorClient
	// ActorSystem はサーバー自身（ステータス変更通知、外部連携など）。
	ActorSystem
)

func (k ActorKind) String() string {
	switch k {
	case ActorOwner:
		return "owner"
	case ActorClient:
		return "client"
	case ActorSystem:
		return "system"
	default:
		return fmt.Sprintf("ActorKind(%d)", int(k))
	}
}

// Principal は認可ゲートを通過した操作主体。
// Kindに応じてOwnerまたはClientのどちらか一方だけが設定される。
type Principal struct {
	Kind   ActorKind
	Owner  *OwnerSession
	Client *ClientClaims
}

// OwnerPrincipal はオーナーの操作主体を生成する。
func OwnerPrincipal(s *OwnerSession) *Principal {
	return &Principal{Kind: ActorOwner, Owner: s}
}

// ClientPrincipal は顧客の操作主体を生成する。
func ClientPrincipal(c *ClientClaims) *Principal {
	return &Principal{Kind: ActorClient, Client: c}
}

// SystemPrincipal はシステムの操作主体を生成する。
func SystemPrincipal() *Principal {
	return &Principal{Kind: ActorSystem}
}

// Label はログ・監査用の主体表記を返す（owner:<userId> / client:<jobId> / system）。
func (p *Principal) Label() string {
	switch p.Kind {
	case ActorOwner:
		return "owner:" + p.Owner.UserID
	case ActorClient:
		return "client:" + p.Client.JobID
	case ActorSystem:
		return "system"
	default:
		return "unknown"
	}
}

// UserID はオーナーの場合のみユーザーIDを返す。
func (p *Principal) UserID() string {
	if p.Kind == ActorOwner && p.Owner != nil {
		return p.Owner.UserID
	}
	return ""
}

// ValidateSender は送信者種別が認証経路と一致するかを検証する。
// 顧客は client のみ、オーナーは owner か system のみ、システムは system のみ送信できる。
func ValidateSender(p *Principal, sender model.SenderType) error {
	if _, ok := model.ParseSenderType(string(sender)); !ok {
		return model.NewValidationError("senderType は owner, client, system のいずれかです")
	}

	var allowed bool
	switch p.Kind {
	case ActorClient:
		allowed = sender == model.SenderClient
	case ActorOwner:
		allowed = sender == model.SenderOwner || sender == model.SenderSystem
	case ActorSystem:
		allowed = sender == model.SenderSystem
	}
	if !allowed {
		return model.NewSenderMismatchError(sender)
	}
	return nil
}
