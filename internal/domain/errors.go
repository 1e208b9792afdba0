package domain

// ErrorKind classifies why a job (or one of its steps) failed. The UI
// maps each kind to a different corrective action, so kinds must stay
// distinguishable all the way from the process layer to the frontend.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindToolNotFound   ErrorKind = "tool_not_found"
	ErrorKindProcessExit    ErrorKind = "process_exit"
	ErrorKindNamingConflict ErrorKind = "naming_conflict"
	ErrorKindCancelled      ErrorKind = "cancelled"
	ErrorKindIO             ErrorKind = "io"
)

// UserMessage returns the actionable headline shown for a failed job.
// Detail text (captured stderr and the like) is carried separately.
func (k ErrorKind) UserMessage() string {
	switch k {
	case ErrorKindToolNotFound:
		return "FFmpeg was not found. Install FFmpeg and make sure it is on your PATH."
	case ErrorKindCancelled:
		return "Conversion cancelled."
	case ErrorKindNamingConflict:
		return "The output file would overwrite the source video."
	case ErrorKindValidation:
		return "The selected file is not a supported video."
	case ErrorKindIO:
		return "A file could not be read or written."
	default:
		return "Conversion failed."
	}
}
