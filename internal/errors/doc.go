// Package errors provides coded, actionable errors for the balco command.
//
// Each error has a code (e.g. "E102") registered with a category, a short
// message and a longer detail. Call sites add a suggestion and wrap the
// underlying cause:
//
//	err := errors.New(errors.CodeInvalidPort).
//	    WithDetailf("PORT=%q is not a number between 1 and 65535", raw).
//	    WithSuggestion("Set PORT to a free TCP port, e.g. PORT=1000")
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// ERROR E102: Invalid port
//	//
//	//   PORT="abc" is not a number between 1 and 65535
//	//
//	//   Hint: Set PORT to a free TCP port, e.g. PORT=1000
//
// # Code ranges
//
//   - E100-E199: configuration
//   - E200-E299: room store backends
//   - E300-E399: server and command line
package errors
