package summary

// FileChange is one touched file with its estimated share of the run's
// line changes. JSON keys are the dashboard's contract.
type FileChange struct {
	Path       string `json:"path"`
	LinesAdded int    `json:"linesAdded"`
}

// ExecutionSummary is the completion report for one executed item.
type ExecutionSummary struct {
	ItemID          string       `json:"itemId"`
	Title           string       `json:"title"`
	Accomplishments []string     `json:"accomplishments"`
	Benefits        []string     `json:"benefits"`
	FilesChanged    []FileChange `json:"filesChanged"`
	PRUrl           string       `json:"prUrl"`
	ElapsedTime     string       `json:"elapsedTime"`
}
