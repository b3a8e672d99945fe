package xltpl

import (
	"errors"
	"fmt"
)

var (
	// ErrSheetNotFound is returned when a sheet identifier matches no declared sheet.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrMalformedReference is returned when a cell or range reference has no row.
	ErrMalformedReference = errors.New("malformed reference")
	// ErrInvalidImageSource is returned when an image value is neither a byte
	// buffer, an existing file path nor valid base64.
	ErrInvalidImageSource = errors.New("invalid image source")
	// ErrUnsupportedImageFormat is returned when image bytes cannot be decoded as a known format.
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	// ErrIDExhaustion is returned when a relationship or part id does not follow
	// the expected naming pattern.
	ErrIDExhaustion = errors.New("id exhaustion")
)

// SubstitutionError locates a failure inside a substitution pass.
type SubstitutionError struct {
	Sheet string
	Cell  string
	Path  string // data path of the placeholder, if any
	Err   error
}

func (e *SubstitutionError) Error() string {
	msg := fmt.Sprintf("sheet %q", e.Sheet)
	if e.Cell != "" {
		msg += " cell " + e.Cell
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	return msg + ": " + e.Err.Error()
}

func (e *SubstitutionError) Unwrap() error {
	return e.Err
}
