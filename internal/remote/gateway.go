package remote

import "context"

// Action is the kind of mutation a committed file carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// FetchResult is the latest remote state of one path.
type FetchResult struct {
	Path     string
	Content  []byte
	Revision string
	Exists   bool
}

// CommitFile is one file in a commit batch. Content is ignored for deletes.
type CommitFile struct {
	Path    string `json:"path"`
	Content []byte `json:"content,omitempty"`
	Action  Action `json:"action"`
}

// Gateway is the transport boundary to the hosted content repository. A
// commit batch is atomic on the server: either every file is accepted or the
// whole batch is rejected.
type Gateway interface {
	// FetchLatest returns the current remote content and revision for a
	// path. A missing path is not an error; Exists is false.
	FetchLatest(ctx context.Context, path string) (*FetchResult, error)

	// Commit applies the batch and returns the new repository revision.
	Commit(ctx context.Context, files []CommitFile, message string) (string, error)

	// CheckConnectivity reports whether the remote is currently reachable.
	CheckConnectivity(ctx context.Context) bool
}
