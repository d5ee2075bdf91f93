// Package ui provides terminal output components for the rmlink CLI.
//
// Most commands follow a "run once and exit" pattern: they print a header,
// do their work, and finish with a styled result box or table. Learning is
// the exception; it runs under a Bubble Tea model with a spinner, a bar
// counting down the learn window, and the list of stages the device has
// passed through.
//
// # Components
//
//   - Header: command banner showing operation name and parameters
//   - Result: success, failure and warning boxes
//   - Device and code tables (lipgloss/table)
//   - Progress: learn-window bar plus stage list
//   - LearnModel: interactive wait for an IR or RF code
//   - Confirm: yes/no prompt before destructive config edits
//
// Example:
//
//	code, err := ui.RunLearn(ctx, ui.LearnConfig{
//	    Title:   "IR Learning",
//	    Command: "rmlink learn",
//	    Steps:   []ui.Step{{Key: "learning", Name: "Waiting for a code"}},
//	    Window:  30 * time.Second,
//	    Run:     run,
//	})
//
// When stdout is not a terminal RunLearn prints plain stage lines instead.
//
// # Logging Integration
//
// Logging is controlled by RMLINK_LOG_LEVEL. When unset, zap logging is
// silent so that only the curated output is shown.
package ui
