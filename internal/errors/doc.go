// Package errors provides structured, actionable errors for the domcore CLI,
// configuration loading and script replay.
//
// # Error Categories
//
//   - config: configuration file problems (missing file, bad values)
//   - script: replay script problems (parse errors, unknown operations)
//   - runtime: failures reported by a running manager
//   - storage: snapshot store failures
//   - cli: command line usage and startup failures
//
// # Error Codes
//
// Each error has a unique code (e.g., "D001") registered with a short message
// and a longer detail text.
//
// # Usage
//
//	err := errors.New("D005").
//	    WithLocation("domcore.yaml", 4, 0).
//	    WithSuggestion("Use a non-negative width, e.g. width: 1280")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR D005: Invalid root size
//	//
//	//   domcore.yaml:4
//	//
//	//       3 │ root:
//	//   →   4 │   width: -1
//	//       5 │   height: 720
//	//
//	//   Root width and height must be finite and non-negative.
//	//
//	//   Hint: Use a non-negative width, e.g. width: 1280
package errors
