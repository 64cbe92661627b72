// Package errors provides structured, actionable errors for the olta
// command line.
//
// Runtime packages return plain sentinel errors. The CLI translates the
// failures an operator can fix (a bad config file, an unreachable store, a
// port already in use) into coded errors with a hint:
//
//	err := errors.New("E102").
//	    WithDetail(`store.driver is "mongo"`).
//	    WithSuggestion("Use one of: memory, sqlite, postgres, s3")
//
//	errors.PrintError(err)
//	// ERROR E102: Unknown store driver
//	//
//	//   store.driver is "mongo"
//	//
//	//   Hint: Use one of: memory, sqlite, postgres, s3
package errors
