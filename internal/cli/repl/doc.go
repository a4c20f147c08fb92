// Package repl provides the interactive mode of emberkv-cli.
//
// Lines are split into arguments with shell-like quoting: double quotes
// understand \n, \r, \t, \\, \" and \xHH escapes, single quotes only \'.
// The words exit, help and history are handled locally; everything else
// goes to the Executor.
package repl
