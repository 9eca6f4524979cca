package models

// ToolsetAuthorization is a read-only snapshot of which toolsets the
// invoking principal may use. It is supplied by the account collaborator
// and re-read fresh on every run-start attempt.
type ToolsetAuthorization map[string]bool

// Authorized reports whether the given toolset may be invoked. Unknown
// toolsets are unauthorized.
func (a ToolsetAuthorization) Authorized(toolsetID string) bool {
	return a[toolsetID]
}
