// Parses flags and configures logging for burrow.
//
// Global flags:
//
//	-q, --quiet     Only log warnings and errors.
//	-d, --debug     Enable debug output, including registry HTTP traces.
//	    --log-json  Log as JSON instead of text.
//
// Logs always go to stderr; stdout belongs to the launched command. Every
// flag of the run command can also be set from a BURROW_* environment
// variable.
package cli
