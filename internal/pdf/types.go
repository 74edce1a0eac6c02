package pdf

// FileInfo represents basic information about a PDF file
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// DirectoryListing is the result of scanning a folder for PDF files
type DirectoryListing struct {
	Directory  string     `json:"directory"`
	Files      []FileInfo `json:"files"`
	TotalCount int        `json:"total_count"`
	Skipped    []string   `json:"skipped,omitempty"`
}
