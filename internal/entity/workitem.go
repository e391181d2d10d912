package entity

import "path/filepath"

// WorkItem is one unit of work for the pool: a single image plus the prompt
// to apply. Immutable once enqueued; never persisted.
type WorkItem struct {
	ImagePath string
	Prompt    string
}

// ItemOutcome is the tagged per-item result: a raw inference payload on
// success or an error description on failure. An item failure never fails
// the enclosing job.
type ItemOutcome struct {
	ImagePath string `json:"image_path"`
	Filename  string `json:"filename"`
	Payload   string `json:"payload,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Success reports whether the item produced a usable payload.
func (o ItemOutcome) Success() bool {
	return o.Err == ""
}

// SuccessOutcome builds an outcome for a completed item.
func SuccessOutcome(imagePath, payload string) ItemOutcome {
	return ItemOutcome{
		ImagePath: imagePath,
		Filename:  filepath.Base(imagePath),
		Payload:   payload,
	}
}

// ErrorOutcome builds an outcome recording an item failure.
func ErrorOutcome(imagePath string, err error) ItemOutcome {
	return ItemOutcome{
		ImagePath: imagePath,
		Filename:  filepath.Base(imagePath),
		Err:       err.Error(),
	}
}
