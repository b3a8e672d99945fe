package xltpl

import "log/slog"

// ImageErrorHandler is called when an image value cannot be embedded.
// The image is skipped and substitution continues.
type ImageErrorHandler func(src any, err error)

// Options holds configuration for a Workbook.
type Options struct {
	moveImages            bool
	moveSameLineImages    bool
	substituteAllTableRow bool
	pushDownPageBreak     bool
	imageRatio            float64
	imageRootPath         string
	imageErrorHandler     ImageErrorHandler
	password              string
	recalculateOnOpen     bool
	logger                *slog.Logger
}

func defaultOptions() *Options {
	return &Options{
		imageRatio: 100,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// Option configures a Workbook.
type Option func(*Options)

// WithMoveImages shifts existing drawing anchors down when table rows are inserted above them.
func WithMoveImages(move bool) Option {
	return func(o *Options) { o.moveImages = move }
}

// WithMoveSameLineImages also moves anchors sitting on the row that triggered the insertion.
func WithMoveSameLineImages(move bool) Option {
	return func(o *Options) { o.moveSameLineImages = move }
}

// WithSubstituteAllTableRow copies the other cells of a table template row onto every new row.
func WithSubstituteAllTableRow(all bool) Option {
	return func(o *Options) { o.substituteAllTableRow = all }
}

// WithPushDownPageBreak grows range names of the current sheet (print areas,
// page breaks) that span a row where table rows are inserted.
func WithPushDownPageBreak(push bool) Option {
	return func(o *Options) { o.pushDownPageBreak = push }
}

// WithImageRatio scales images placed outside merged cells, in percent (default: 100).
// Values <= 0 fall back to 100.
func WithImageRatio(percent float64) Option {
	return func(o *Options) { o.imageRatio = percent }
}

// WithImageRootPath resolves image file paths relative to dir.
func WithImageRootPath(dir string) Option {
	return func(o *Options) { o.imageRootPath = dir }
}

// WithImageErrorHandler skips images that fail to load and reports them to fn
// instead of aborting the substitution.
func WithImageErrorHandler(fn ImageErrorHandler) Option {
	return func(o *Options) { o.imageErrorHandler = fn }
}

// WithPassword opens and saves password-protected workbooks.
func WithPassword(password string) Option {
	return func(o *Options) { o.password = password }
}

// WithRecalculateOnOpen tells Excel to recalculate all formulas when the file is opened.
func WithRecalculateOnOpen(recalc bool) Option {
	return func(o *Options) { o.recalculateOnOpen = recalc }
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func (o *Options) ratio() float64 {
	if o.imageRatio <= 0 {
		return 100
	}
	return o.imageRatio
}
