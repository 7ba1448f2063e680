package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PortalTokenParam はポータルトークンを渡すクエリパラメータ名。
const PortalTokenParam = "t"

// JobScopeFinder は認可判定用のジョブ情報取得インターフェース。
type JobScopeFinder interface {
	FindJobScope(ctx context.Context, jobID string) (*model.JobScope, error)
}

// DecisionRecorder はゲート判定の記録先。metrics.Collectorが実装する。
type DecisionRecorder interface {
	RecordGateDecision(track, outcome string)
}

// Gate はオーナーセッションとポータルトークンのどちらかでジョブへのアクセスを認可する。
type Gate struct {
	sessions *SessionManager
	tokens   *PortalTokens
	jobs     JobScopeFinder
	recorder DecisionRecorder
}

// NewGate はGateを生成する。recorderはnilでもよい。
func NewGate(sessions *SessionManager, tokens *PortalTokens, jobs JobScopeFinder, recorder DecisionRecorder) *Gate {
	return &Gate{sessions: sessions, tokens: tokens, jobs: jobs, recorder: recorder}
}

// Authorize はリクエストがjobIDのジョブにアクセスできるかを判定する。
//
// セッションが有効ならオーナーとして扱い、トークンは無視する。
// オーナーはジョブが存在しなければ404、組織が異なれば403。
// 顧客はトークン検証・ジョブ存在・指紋一致のいずれが欠けても同一の401を返す。
// 資格情報が何も無い場合はストアに問い合わせない。
func (g *Gate) Authorize(ctx context.Context, r *http.Request, jobID string) (*Principal, error) {
	if session, ok := g.sessions.ReadSession(r); ok {
		return g.authorizeOwner(ctx, session, jobID)
	}

	token := r.URL.Query().Get(PortalTokenParam)
	if token == "" {
		g.record("none", "unauthorized")
		return nil, model.NewUnauthorizedError()
	}
	return g.authorizeClient(ctx, token, jobID)
}

func (g *Gate) authorizeOwner(ctx context.Context, session *OwnerSession, jobID string) (*Principal, error) {
	scope, err := g.jobs.FindJobScope(ctx, jobID)
	if err != nil {
		g.record("owner", "error")
		return nil, fmt.Errorf("failed to load job scope: %w", err)
	}
	if scope == nil {
		g.record("owner", "not_found")
		return nil, model.NewJobNotFoundError(jobID)
	}
	if scope.OrgID != session.OrgID {
		slog.Warn("owner denied access to job of another organization",
			slog.String("user_id", session.UserID),
			slog.String("job_id", jobID),
		)
		g.record("owner", "forbidden")
		return nil, model.NewForbiddenError()
	}
	g.record("owner", "allow")
	return OwnerPrincipal(session), nil
}

func (g *Gate) authorizeClient(ctx context.Context, token, jobID string) (*Principal, error) {
	claims, ok := g.tokens.Verify(token)
	if !ok || claims.JobID != jobID {
		g.record("client", "unauthorized")
		return nil, model.NewUnauthorizedError()
	}

	scope, err := g.jobs.FindJobScope(ctx, jobID)
	if err != nil {
		g.record("client", "error")
		return nil, fmt.Errorf("failed to load job scope: %w", err)
	}
	// 存在しないジョブと失効済みトークンは不正トークンと区別しない
	if scope == nil || !sameFingerprint(scope.PortalTokenFingerprint, Fingerprint(token)) {
		g.record("client", "unauthorized")
		return nil, model.NewUnauthorizedError()
	}

	g.record("client", "allow")
	return ClientPrincipal(claims), nil
}

func (g *Gate) record(track, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordGateDecision(track, outcome)
	}
}

func sameFingerprint(stored, presented string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
