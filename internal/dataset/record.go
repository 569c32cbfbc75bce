package dataset

// Artifact file names inside a batch output directory.
const (
	CaptionsJSONName = "captions.json"
	CaptionsCSVName  = "captions.csv"
	IssuesCSVName    = "caption_issues.csv"
)

// Record is one image with its service caption and normalized caption.
type Record struct {
	Image        string `json:"image"`
	RawCaption   string `json:"raw_caption"`
	FinalCaption string `json:"final_caption"`
}

// Issue is a validation flag attached to one image.
type Issue struct {
	Image string `json:"image"`
	Issue string `json:"issue"`
}

var (
	recordHeader = []string{"image", "raw_caption", "final_caption"}
	issueHeader  = []string{"image", "issue"}
)
