// Package command defines the emberkv-cli application.
//
// With positional arguments the CLI sends them as one command, prints the
// reply and exits; an error reply makes the exit status non-zero. Without
// arguments it starts the interactive REPL.
package command
