package store

// Session is a persisted review session: either a local git working
// tree or a hosted pull request, plus the file-set overlays applied on
// top of whatever the backend's diff naturally contains.
type Session struct {
	ID              string
	BackendType     string // "local" | "hosted"
	RepoPath        string
	Owner           string
	Repo            string
	PRNumber        int
	AuthTokenRef    string
	Project         string
	Branch          string
	TargetBranch    string
	RegisteredFiles map[string]string // path -> agent id
	ManualAdditions []string
	ManualRemovals  []string
	CreatedAt       string
	UpdatedAt       string
}

// Comment is a single review comment or reply, anchored to a file/line
// at creation time via LineContentHash for later staleness detection.
type Comment struct {
	ID              string
	SessionID       string
	ParentID        string // empty for top-level comments
	File            string
	Line            int
	Side            string // "base" | "head"
	LineContent     string
	LineContentHash string
	ContextBefore   string
	ContextAfter    string
	Author          string
	Resolved        bool
	CreatedAt       string
	UpdatedAt       string
}

// User is an authenticated principal identified by an opaque API key.
type User struct {
	ID     string
	Email  string
	Name   string
	APIKey string
}

// OAuthClient is a registered OAuth client application.
type OAuthClient struct {
	ID           string
	Secret       string
	RedirectURIs []string
	Name         string
}

// OAuthAuthorization is a pending authorization code, including its PKCE
// challenge, awaiting exchange for a token pair.
type OAuthAuthorization struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
	Scope               string
	ExpiresAt           string
}

// OAuthToken is an issued access or refresh token.
type OAuthToken struct {
	Token     string
	ClientID  string
	UserID    string
	Scope     string
	ExpiresAt string
	Refresh   string // the paired token: the refresh token for an access token, the access token for a refresh token
	Revoked   bool
}
