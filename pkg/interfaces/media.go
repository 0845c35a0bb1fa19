package interfaces

import "context"

// CredentialIssuer issues per-user access tokens scoped to a media room and
// releases room resources when a session ends. The media transport itself is
// an external provider; only credentials and room lifetime are in scope.
type CredentialIssuer interface {
	// IssueToken returns a token granting identity access to roomID.
	IssueToken(ctx context.Context, roomID, identity string) (string, error)

	// ReleaseRoom tears down provider-side room resources. Best-effort:
	// callers log failures and do not surface them.
	ReleaseRoom(ctx context.Context, roomID string) error
}
