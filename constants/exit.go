package constants

// Process exit codes for cmd/ibansync.
const (
	ExitOK         = 0
	ExitFatal      = 1 // connection failure or uncaught top-level error
	ExitConfig     = 2 // settings could not be loaded or validated
	ExitWithErrors = 3 // run completed, but some files or entries failed
)
